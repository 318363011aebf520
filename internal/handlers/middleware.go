package handlers

import (
	"net/http"
	"strings"

	"github.com/arogya-labs/teleconsult/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// AuthRequired validates the bearer token and exposes the identity to the
// downstream handlers.
func (h *Handlers) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		claims, err := h.parseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func currentUser(c *gin.Context) (userID string, role models.Role) {
	userID = c.GetString(ctxUserID)
	if v, ok := c.Get(ctxRole); ok {
		role, _ = v.(models.Role)
	}
	return userID, role
}
