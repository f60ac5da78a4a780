package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mahaj/bizchat/pkg/model"
)

type MemoryNotifications struct {
	mu    sync.RWMutex
	items map[int64]*model.Notification
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{items: make(map[int64]*model.Notification)}
}

var _ NotificationStore = (*MemoryNotifications)(nil)

func copyNotification(n *model.Notification) *model.Notification {
	out := *n
	out.Payload = append([]byte(nil), n.Payload...)
	return &out
}

func (s *MemoryNotifications) CreateNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = copyNotification(n)
	return nil
}

func (s *MemoryNotifications) GetNotification(_ context.Context, id int64) (*model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyNotification(n), nil
}

func (s *MemoryNotifications) ListNotifications(_ context.Context, q NotificationQuery) ([]*model.Notification, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Notification
	for _, n := range s.items {
		if n.RecipientID != q.RecipientID || (q.UnreadOnly && n.Read) {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []*model.Notification{}, total, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page := make([]*model.Notification, 0, end-q.Offset)
	for _, n := range matched[q.Offset:end] {
		page = append(page, copyNotification(n))
	}
	return page, total, nil
}

func (s *MemoryNotifications) CountUnread(_ context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, item := range s.items {
		if item.RecipientID == recipientID && !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotifications) MarkNotificationRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *MemoryNotifications) MarkAllNotificationsRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, n := range s.items {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			affected++
		}
	}
	return affected, nil
}

func (s *MemoryNotifications) DeleteNotification(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}
