package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionMiddleware resolves the "token" header to a username for traceability.
// Requests without a token pass through anonymously; the import never
// authorizes on identity.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Request.Header.Get("token"))
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware takes x-correlation-id or generates one, and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}
