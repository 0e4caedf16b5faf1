package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the caller identity asserted by the upstream gateway.
	UserIDHeader = "X-User-ID"
	// UserIDKey is the context key for the caller identity
	UserIDKey = "user_id"
)

// UserIdentity extracts the gateway-asserted user identity from request
// headers and stores it on the context. Authentication itself happens
// upstream; this service only needs to know who the caller is.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
			c.Set(UserIDKey, userID)
			if reqCtx := GetRequestContext(c); reqCtx != nil {
				reqCtx.UserID = userID
			}
		}
		c.Next()
	}
}

// GetUserID retrieves the caller identity from the context.
func GetUserID(c *gin.Context) (string, bool) {
	if val, exists := c.Get(UserIDKey); exists {
		if id, ok := val.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}
