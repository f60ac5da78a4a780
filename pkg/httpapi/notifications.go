package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		unreadOnly, _ := strconv.ParseBool(c.Query("unread"))

		res, err := s.Notifications.List(c.Request.Context(), caller(c), page, limit, unreadOnly)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"data":        res.Data,
			"unreadCount": res.UnreadCount,
			"pagination":  res.Pagination,
		})
	}
}

func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.Notifications.UnreadCount(c.Request.Context(), caller(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"unreadCount": n})
	}
}

func (s *Server) handleMarkNotificationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		if err := s.Notifications.MarkRead(c.Request.Context(), caller(c), id); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"id": id, "read": true})
	}
}

func (s *Server) handleMarkAllNotificationsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		affected, err := s.Notifications.MarkAllRead(c.Request.Context(), caller(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"affected": affected})
	}
}

func (s *Server) handleDeleteNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		if err := s.Notifications.Delete(c.Request.Context(), caller(c), id); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"id": id})
	}
}
