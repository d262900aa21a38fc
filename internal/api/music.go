package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tmister923-blip/bot-login/internal/services/music"
)

func (s *Server) handleMusicProbe(c *gin.Context) {
	if err := s.music.Probe(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (s *Server) handleMusicSearch(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}
	tracks, err := s.music.Search(c.Request.Context(), req.Query)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (s *Server) handleMusicPlay(c *gin.Context) {
	var req struct {
		GuildID string      `json:"guildId"`
		Track   music.Track `json:"track"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" || req.Track.Encoded == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId and track required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.music.Play(req.GuildID, req.Track)})
}

func (s *Server) handleMusicPause(c *gin.Context) {
	var req struct {
		GuildID string `json:"guildId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	state, ok := s.music.Pause(req.GuildID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "nothing playing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (s *Server) handleMusicStop(c *gin.Context) {
	var req struct {
		GuildID string `json:"guildId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.music.Stop(req.GuildID)})
}

func (s *Server) handleMusicQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.music.Queue(c.Param("guildId"))})
}
