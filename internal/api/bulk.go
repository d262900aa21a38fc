package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tmister923-blip/bot-login/internal/services/bulkdm"
)

type sendDMsReq struct {
	Message     string   `json:"message"`
	GuildID     string   `json:"guildId"`
	Type        string   `json:"type"` // "all" | "custom"
	CustomUsers []string `json:"customUsers"`
	// Delay is seconds between messages, RestTime minutes between
	// batches. Matches what the dashboard sends.
	Delay     float64 `json:"delay"`
	RestTime  float64 `json:"restTime"`
	BatchSize int     `json:"batchSize"`
}

func (r *sendDMsReq) validate() string {
	if strings.TrimSpace(r.Message) == "" {
		return "message required"
	}
	switch bulkdm.Scope(r.Type) {
	case bulkdm.ScopeAll:
		if r.GuildID == "" {
			return "guildId required for type \"all\""
		}
	case bulkdm.ScopeCustom:
		if len(r.CustomUsers) == 0 {
			return "customUsers required for type \"custom\""
		}
	default:
		return "type must be \"all\" or \"custom\""
	}
	if r.Delay < 0 || r.RestTime < 0 {
		return "delay and restTime must not be negative"
	}
	return ""
}

func (r *sendDMsReq) toRequest() bulkdm.Request {
	return bulkdm.Request{
		Message:    r.Message,
		Scope:      bulkdm.Scope(r.Type),
		GuildID:    r.GuildID,
		Recipients: r.CustomUsers,
		Delay:      time.Duration(r.Delay * float64(time.Second)),
		Rest:       time.Duration(r.RestTime * float64(time.Minute)),
		BatchSize:  r.BatchSize,
	}
}

func (s *Server) handleSendDMs(c *gin.Context) {
	var req sendDMsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}

	// The job outlives this request, so it must not inherit the
	// request context.
	id, started := s.bulk.TryStart(context.Background(), sess, sess, req.toRequest())
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "a bulk DM job is already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": id, "status": "started"})
}

func (s *Server) handleExtractUsers(c *gin.Context) {
	var req struct {
		GuildID     string `json:"guildId"`
		IncludeBots bool   `json:"includeBots"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	members, err := sess.AllMembers(c.Request.Context(), req.GuildID, s.cfg.PageLimit, s.cfg.MaxPages, s.cfg.PageDelay)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !req.IncludeBots {
		filtered := members[:0]
		for _, m := range members {
			if !m.User.Bot {
				filtered = append(filtered, m)
			}
		}
		members = filtered
	}
	c.JSON(http.StatusOK, gin.H{"count": len(members), "members": members})
}

func (s *Server) handlePreviewRecipients(c *gin.Context) {
	var req struct {
		GuildID     string   `json:"guildId"`
		Type        string   `json:"type"`
		CustomUsers []string `json:"customUsers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}

	switch bulkdm.Scope(req.Type) {
	case bulkdm.ScopeCustom:
		count := 0
		for _, id := range req.CustomUsers {
			if strings.TrimSpace(id) != "" {
				count++
			}
		}
		c.JSON(http.StatusOK, gin.H{"count": count, "type": req.Type})
	case bulkdm.ScopeAll:
		if req.GuildID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required for type \"all\""})
			return
		}
		sess, ok := s.session(c)
		if !ok {
			return
		}
		members, err := sess.AllMembers(c.Request.Context(), req.GuildID, s.cfg.PageLimit, s.cfg.MaxPages, s.cfg.PageDelay)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		count := 0
		for _, m := range members {
			if !m.User.Bot {
				count++
			}
		}
		c.JSON(http.StatusOK, gin.H{"count": count, "type": req.Type})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be \"all\" or \"custom\""})
	}
}
