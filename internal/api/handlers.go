package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tmister923-blip/bot-login/internal/discord"
	"github.com/tmister923-blip/bot-login/internal/services/stats"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.sessions != nil {
		resp["sessions"] = s.sessions.Count()
	}
	if s.hub != nil {
		resp["wsClients"] = s.hub.Count()
	}
	if s.bulk != nil {
		resp["jobRunning"] = s.bulk.InFlight()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVerifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	_ = c.ShouldBindJSON(&req)
	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		tok = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if tok == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "token required"})
		return
	}

	user, err := s.verify(c.Request.Context(), tok)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "bot": user})
}

func (s *Server) handleBotInfo(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	user, err := sess.CurrentUser(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": user})
}

func (s *Server) handleBotGuilds(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	guilds, err := sess.Guilds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guilds": guilds})
}

func (s *Server) handleSearchUser(c *gin.Context) {
	var req struct {
		GuildID string `json:"guildId"`
		Query   string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}

	if isSnowflake(req.Query) {
		user, err := sess.UserByID(c.Request.Context(), req.Query)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
		return
	}
	if req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required for username search"})
		return
	}
	member, err := sess.SearchMember(c.Request.Context(), req.GuildID, req.Query, s.cfg.PageLimit, s.cfg.MaxPages, s.cfg.PageDelay)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if member == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": member.User, "member": member})
}

func (s *Server) handleUpdateBot(c *gin.Context) {
	var req struct {
		Status       string  `json:"status"`
		ActivityType string  `json:"activityType"`
		ActivityName string  `json:"activityName"`
		StreamingURL string  `json:"streamingUrl"`
		Username     *string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if req.Status != "" || req.ActivityName != "" {
		err := sess.SetPresence(ctx, discord.PresenceUpdate{
			Status:       req.Status,
			ActivityType: req.ActivityType,
			ActivityName: req.ActivityName,
			StreamingURL: req.StreamingURL,
		})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}

	resp := gin.H{"updated": true}
	if req.Username != nil {
		user, err := sess.UpdateProfile(ctx, discord.ProfileUpdate{Username: req.Username})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		resp["bot"] = user
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUploadAvatar(c *gin.Context) { s.updateProfileImage(c, "avatar") }
func (s *Server) handleUploadBanner(c *gin.Context) { s.updateProfileImage(c, "banner") }

// updateProfileImage patches the bot profile with a data-URI image.
func (s *Server) updateProfileImage(c *gin.Context, field string) {
	var req struct {
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if !strings.HasPrefix(req.Image, "data:image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be a data URI"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	up := discord.ProfileUpdate{}
	if field == "avatar" {
		up.Avatar = &req.Image
	} else {
		up.Banner = &req.Image
	}
	user, err := sess.UpdateProfile(c.Request.Context(), up)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": user})
}

func (s *Server) handleGetStickers(c *gin.Context) {
	var req struct {
		GuildID string `json:"guildId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	stickers, err := sess.Stickers(c.Request.Context(), req.GuildID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stickers": stickers})
}

func (s *Server) handleUploadSticker(c *gin.Context) {
	guildID := c.PostForm("guildId")
	name := c.PostForm("name")
	if guildID == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId and name required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sticker file required"})
		return
	}
	file, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	sess, ok := s.session(c)
	if !ok {
		return
	}
	sticker, err := sess.CreateSticker(c.Request.Context(), guildID, name,
		c.PostForm("description"), c.DefaultPostForm("tags", name), fh.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sticker": sticker})
}

func (s *Server) handleDeleteSticker(c *gin.Context) {
	var req struct {
		GuildID   string `json:"guildId"`
		StickerID string `json:"stickerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" || req.StickerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId and stickerId required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.DeleteSticker(c.Request.Context(), req.GuildID, req.StickerID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleServerStats(c *gin.Context) {
	var req struct {
		GuildID string `json:"guildId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	guild, err := sess.Guild(ctx, req.GuildID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	textChannels, voiceChannels := 0, 0
	if channels, err := sess.Channels(ctx, req.GuildID); err == nil {
		for _, ch := range channels {
			switch ch.Type {
			case discord.ChannelTypeText:
				textChannels++
			case discord.ChannelTypeVoice:
				voiceChannels++
			}
		}
	} else {
		s.log.Debug("channel listing failed", logx.String("guild", req.GuildID), logx.Err(err))
	}

	resp := gin.H{
		"guild":         guild,
		"textChannels":  textChannels,
		"voiceChannels": voiceChannels,
	}
	if s.tracker != nil {
		messages, reactions, tracked := s.tracker.Totals(req.GuildID)
		resp["activity"] = gin.H{
			"messages":     messages,
			"reactions":    reactions,
			"trackedUsers": tracked,
			"topUsers":     s.tracker.TopBy(req.GuildID, stats.ByMessages, 10),
			"perMinute":    s.tracker.Window(req.GuildID),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatHistory(c *gin.Context) {
	var req struct {
		ChannelID string `json:"channelId"`
		Limit     int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ChannelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelId required"})
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	msgs, err := sess.Messages(c.Request.Context(), req.ChannelID, req.Limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleSendChatMessage(c *gin.Context) {
	var req struct {
		ChannelID string `json:"channelId"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ChannelID == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelId and message required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	msg, err := sess.SendMessage(c.Request.Context(), req.ChannelID, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.sessions.Logout(c.Request.Context(), token(c))
	c.JSON(http.StatusOK, gin.H{"loggedOut": true})
}

func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
