package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tmister923-blip/bot-login/internal/services/commands"
)

func (s *Server) handleListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": s.cmds.List(c.Query("guildId"))})
}

type commandReq struct {
	ID       string `json:"id"`
	GuildID  string `json:"guildId"`
	Trigger  string `json:"trigger"`
	Type     string `json:"type"`
	Response string `json:"response"`
	Cooldown int    `json:"cooldown"`
}

func (s *Server) handleCreateCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if req.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guildId required"})
		return
	}
	cmd, err := s.cmds.Create(req.GuildID, req.Trigger, commands.Type(req.Type), req.Response, req.Cooldown)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"command": cmd})
}

func (s *Server) handleUpdateCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}
	cmd, err := s.cmds.Update(req.ID, req.Trigger, commands.Type(req.Type), req.Response, req.Cooldown)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": cmd})
}

func (s *Server) handleDeleteCommand(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}
	if !s.cmds.Delete(req.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
