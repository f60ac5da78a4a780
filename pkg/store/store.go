// Package store holds the conversation and notification repositories the
// services depend on, with in-memory, ScyllaDB and Postgres backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mahaj/bizchat/pkg/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate conversation")
)

// ConversationStore owns conversations, their messages and per-participant
// read state. Callers serialize writes per conversation id; implementations
// only need read-committed visibility.
type ConversationStore interface {
	// CreateConversation fails with ErrDuplicate when a direct conversation
	// with the same key already exists.
	CreateConversation(ctx context.Context, c *model.Conversation) error
	FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)

	// AppendMessage stores m, moves the conversation summary forward when m
	// is the newest message and bumps unread counts for recipients.
	AppendMessage(ctx context.Context, m *model.Message, recipients []string) error
	ListMessages(ctx context.Context, conversationID string) ([]*model.Message, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)

	// MarkRead flips every unread message not sent by userID, zeroes the
	// user's unread count and returns how many messages flipped.
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)

	// DeleteMessage removes m and recomputes the summary and unread counts
	// from what remains.
	DeleteMessage(ctx context.Context, m *model.Message) error
}

type NotificationQuery struct {
	RecipientID string
	UnreadOnly  bool
	Offset      int
	Limit       int
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id int64) (*model.Notification, error)
	// ListNotifications returns one page, newest first, and the total number
	// of rows matching the query.
	ListNotifications(ctx context.Context, q NotificationQuery) ([]*model.Notification, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	DeleteNotification(ctx context.Context, id int64) error
}

// readMark is a participant's read watermark: every message at or before
// it counts as seen.
type readMark struct {
	At time.Time
	ID int64
}

func (r readMark) covers(m *model.Message) bool {
	return !(&model.Message{ID: r.ID, CreatedAt: r.At}).Before(m)
}

// unreadFor counts messages from other senders past the watermark.
func unreadFor(userID string, mark readMark, msgs []*model.Message) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID != userID && !mark.covers(m) {
			n++
		}
	}
	return n
}
