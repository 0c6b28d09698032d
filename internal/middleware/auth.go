package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studybuddy/backend/pkg/utils"
)

// UserIDKey is where RequireUser stores the authenticated user ID.
const UserIDKey = "user_id"

// RequireUser extracts the user identity forwarded by the auth gateway. The
// gateway terminates real authentication; this middleware only enforces that
// the identity header is present and shaped like a UUID.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Missing X-User-ID header", nil)
			c.Abort()
			return
		}
		if !utils.IsValidID(userID) {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Malformed user ID", nil)
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID reads the authenticated user ID set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
