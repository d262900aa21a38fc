package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxToken = "botToken"

// requireToken extracts the bot token from the Authorization header.
// Handlers behind this middleware read it via token(c).
func (s *Server) requireToken(c *gin.Context) {
	h := c.GetHeader("Authorization")
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if tok == "" || tok == h {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bot token"})
		return
	}
	c.Set(ctxToken, tok)
	c.Next()
}

func token(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// session resolves the live bot session for the request token. Writes
// the error response itself on failure.
func (s *Server) session(c *gin.Context) (BotSession, bool) {
	sess, err := s.sessions.Session(c.Request.Context(), token(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bot login failed: " + err.Error()})
		return nil, false
	}
	return sess, true
}
