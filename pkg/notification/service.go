// Package notification keeps each user's notification feed: creation from
// domain events, paged listing and read state.
package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/push"
	"github.com/mahaj/bizchat/pkg/snowflake"
	"github.com/mahaj/bizchat/pkg/store"
	"github.com/pkg/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Pagination struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// Page is one slice of a user's feed plus the unread badge count.
type Page struct {
	Data        []*model.Notification `json:"data"`
	UnreadCount int64                 `json:"unreadCount"`
	Pagination  Pagination            `json:"pagination"`
}

type Service struct {
	store  store.NotificationStore
	ids    *snowflake.Node
	pusher push.Pusher
}

func NewService(st store.NotificationStore, ids *snowflake.Node, pusher push.Pusher) *Service {
	return &Service{store: st, ids: ids, pusher: pusher}
}

// Create stores a notification for recipientID and pushes it live.
func (s *Service) Create(ctx context.Context, recipientID string, typ model.NotificationType, title, message string, payload json.RawMessage) (*model.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, apperr.New(apperr.KindValidation, "recipientId is required")
	}
	if strings.TrimSpace(title) == "" {
		return nil, apperr.New(apperr.KindValidation, "title is required")
	}
	if _, err := model.DecodePayload(typ, payload); err != nil {
		return nil, apperr.Validation(err)
	}

	id := s.ids.Generate()
	n := &model.Notification{
		ID:          id,
		RecipientID: recipientID,
		Type:        typ,
		Title:       title,
		Message:     message,
		Payload:     payload,
		CreatedAt:   snowflake.Time(id),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "create notification"))
	}

	ev := model.Event{Name: model.EventNotificationNew, Data: n}
	if err := s.pusher.Push(ctx, []string{recipientID}, ev); err != nil {
		log.Warn("live push failed", "event", ev.Name, "kind", apperr.KindTransientDelivery, "err", err)
	}
	return n, nil
}

func (s *Service) CreateFromEvent(ctx context.Context, ev model.DomainEvent) (*model.Notification, error) {
	return s.Create(ctx, ev.RecipientID, ev.Type, ev.Title, ev.Message, ev.Payload)
}

// List returns a page of userID's notifications, newest first. page and
// pageSize are clamped to sane values rather than rejected.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	items, total, err := s.store.ListNotifications(ctx, store.NotificationQuery{
		RecipientID: userID,
		UnreadOnly:  unreadOnly,
		Offset:      (page - 1) * pageSize,
		Limit:       pageSize,
	})
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "list notifications"))
	}
	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages < 1 {
		pages = 1
	}
	return &Page{
		Data:        items,
		UnreadCount: unread,
		Pagination:  Pagination{Page: page, Pages: pages, Limit: pageSize, Total: total},
	}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(errors.Wrap(err, "count unread notifications"))
	}
	return n, nil
}

// owned loads a notification and checks it belongs to userID.
func (s *Service) owned(ctx context.Context, userID string, id int64) (*model.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("notification not found")
	}
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "get notification"))
	}
	if n.RecipientID != userID {
		return nil, apperr.Forbidden("notification belongs to another user")
	}
	return n, nil
}

// MarkRead is idempotent; marking an already read notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID string, id int64) error {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return apperr.Internal(errors.Wrap(err, "mark notification read"))
	}
	return nil
}

// MarkAllRead returns how many notifications were unread before the call.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	affected, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(errors.Wrap(err, "mark all notifications read"))
	}
	log.Debug("notifications marked read", "user", userID, "affected", affected)
	return affected, nil
}

func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	err := s.store.DeleteNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return apperr.Internal(errors.Wrap(err, "delete notification"))
	}
	return nil
}
