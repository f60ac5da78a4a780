package httpapi

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/auth"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

// limitSends caps how many messages one user may send per second.
func limitSends(perSecond uint) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Second,
		Limit: perSecond,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many messages, try again in " + time.Until(info.ResetTime).Round(time.Millisecond).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			if id, ok := auth.FromContext(c); ok {
				return id.UserID
			}
			return c.ClientIP()
		},
	})
}
