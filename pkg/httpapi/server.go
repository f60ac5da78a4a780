// Package httpapi exposes the messaging and notification services over a
// bearer-authenticated gin router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/auth"
	"github.com/mahaj/bizchat/pkg/messaging"
	"github.com/mahaj/bizchat/pkg/notification"
)

// PresenceChecker answers whether a user has a live connection.
type PresenceChecker interface {
	Online(ctx context.Context, userID string) (bool, error)
}

type Server struct {
	Verifier      *auth.Verifier
	Messages      *messaging.Service
	Notifications *notification.Service
	Presence      PresenceChecker

	// WebSocket is mounted at /ws when set. It authenticates on its own.
	WebSocket     http.Handler
	SendRateLimit uint

	// DevLogin enables POST /dev/login, which mints a token for any user id.
	// Never turn it on outside local development.
	DevLogin bool
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:    []string{"Origin", "Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	s.defineRoutes(r)
	return r
}

func (s *Server) defineRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { ok(c, http.StatusOK, "ok") })
	if s.WebSocket != nil {
		r.GET("/ws", gin.WrapH(s.WebSocket))
	}
	if s.DevLogin {
		r.POST("/dev/login", s.handleDevLogin())
	}

	authorized := r.Group("/")
	authorized.Use(auth.Middleware(s.Verifier, fail))

	limit := s.SendRateLimit
	if limit == 0 {
		limit = 5
	}

	authorized.GET("/conversations", s.handleListConversations())
	authorized.POST("/conversations", s.handleCreateConversation())
	authorized.GET("/conversations/:id", s.handleGetConversation())
	authorized.GET("/conversations/:id/messages", s.handleListMessages())
	authorized.POST("/conversations/:id/messages", limitSends(limit), s.handleSendMessage())
	authorized.PATCH("/conversations/:id/read", s.handleMarkConversationRead())
	authorized.DELETE("/messages/:id", s.handleDeleteMessage())

	authorized.GET("/notifications", s.handleListNotifications())
	authorized.GET("/notifications/unread-count", s.handleUnreadCount())
	authorized.PATCH("/notifications/read-all", s.handleMarkAllNotificationsRead())
	authorized.PATCH("/notifications/:id/read", s.handleMarkNotificationRead())
	authorized.DELETE("/notifications/:id", s.handleDeleteNotification())

	authorized.GET("/users/:id/presence", s.handlePresence())
}

// caller returns the authenticated user id. The auth middleware guarantees
// it is present on every authorized route.
func caller(c *gin.Context) string {
	id, _ := auth.FromContext(c)
	return id.UserID
}
