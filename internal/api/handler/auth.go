package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetAnonID issues a fresh anonymous id and its token.
func (h *Handler) GetAnonID(c *gin.Context) {
	token, anonID, err := h.Tokens.IssueAnonymous()
	if err != nil {
		h.Log.WithError(err).Error("failed to issue anonymous token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}

// requestToken reads the token from the Authorization header, or from the
// token query parameter for browsers that cannot set headers on a websocket.
func requestToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}
