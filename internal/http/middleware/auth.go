package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"huddle.app/relay/common/logger"
)

const (
	UserIDHeader   = "X-User-ID"
	AdminKeyHeader = "X-Admin-Key"

	userIDQueryParam = "user_id"
	userIDContextKey = "user_id"
	maxUserIDLen     = 48
)

// RequireUser resolves the caller from the X-User-ID header, falling back to
// the user_id query parameter for clients that cannot set headers (browsers
// opening a websocket). Identity is asserted by the gateway in front of relay.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query(userIDQueryParam))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
			return
		}
		if len(userID) > maxUserIDLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user id too long"})
			return
		}

		c.Set(userIDContextKey, userID)
		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{UserID: logger.Ptr(userID)})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID returns the caller set by RequireUser, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

// RequireAdminKey guards operator routes. An empty key disables them.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin routes are disabled"})
			return
		}
		provided := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}
