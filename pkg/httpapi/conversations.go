package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/mahaj/bizchat/pkg/messaging"
	"github.com/mahaj/bizchat/pkg/model"
)

type createConversationRequest struct {
	Type         model.ConversationType `json:"type" binding:"required"`
	Participants []string               `json:"participants" binding:"required,min=1"`
	Title        string                 `json:"title"`
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		convs, err := s.Messages.ListConversations(c.Request.Context(), caller(c), messaging.ListOptions{Limit: limit})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, convs)
	}
}

func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.KindValidation, "type and participants are required"))
			return
		}
		conv, err := s.Messages.CreateConversation(c.Request.Context(), caller(c), req.Type, req.Participants, req.Title)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, conv)
	}
}

func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.Messages.GetConversation(c.Request.Context(), caller(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, conv)
	}
}

func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := s.Messages.ListMessages(c.Request.Context(), caller(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, msgs)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var content model.Content
		if err := c.ShouldBindJSON(&content); err != nil {
			fail(c, apperr.New(apperr.KindValidation, "invalid request body"))
			return
		}
		m, err := s.Messages.SendMessage(c.Request.Context(), caller(c), c.Param("id"), content)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, m)
	}
}

func (s *Server) handleMarkConversationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.Messages.MarkRead(c.Request.Context(), caller(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"conversationId": c.Param("id"), "marked": n})
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		if err := s.Messages.DeleteMessage(c.Request.Context(), caller(c), id); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"id": id})
	}
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, "invalid id %q", c.Param("id"))
	}
	return id, nil
}
