package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/pkg/errors"
)

func (s *Server) handlePresence() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if s.Presence == nil {
			ok(c, http.StatusOK, gin.H{"userId": userID, "online": false})
			return
		}
		online, err := s.Presence.Online(c.Request.Context(), userID)
		if err != nil {
			fail(c, apperr.Internal(errors.Wrap(err, "presence lookup")))
			return
		}
		ok(c, http.StatusOK, gin.H{"userId": userID, "online": online})
	}
}
