package store

import (
	"context"

	"github.com/mahaj/bizchat/pkg/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormNotifications keeps notifications in a relational database. The
// deployed backend is Postgres; tests run it on SQLite.
type GormNotifications struct {
	db *gorm.DB
}

func NewGormNotifications(db *gorm.DB) *GormNotifications {
	return &GormNotifications{db: db}
}

var _ NotificationStore = (*GormNotifications)(nil)

func (s *GormNotifications) CreateNotification(ctx context.Context, n *model.Notification) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(n).Error, "create notification")
}

func (s *GormNotifications) GetNotification(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get notification")
	}
	return &n, nil
}

func (s *GormNotifications) scope(ctx context.Context, recipientID string, unreadOnly bool) *gorm.DB {
	cond := map[string]interface{}{"recipient_id": recipientID}
	if unreadOnly {
		cond["read"] = false
	}
	return s.db.WithContext(ctx).Model(&model.Notification{}).Where(cond)
}

func (s *GormNotifications) ListNotifications(ctx context.Context, q NotificationQuery) ([]*model.Notification, int64, error) {
	var total int64
	if err := s.scope(ctx, q.RecipientID, q.UnreadOnly).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count notifications")
	}

	items := []*model.Notification{}
	tx := s.scope(ctx, q.RecipientID, q.UnreadOnly).
		Order("created_at DESC").
		Order("id DESC").
		Offset(q.Offset)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list notifications")
	}
	return items, total, nil
}

func (s *GormNotifications) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.scope(ctx, recipientID, true).Count(&n).Error
	return n, errors.Wrap(err, "count unread notifications")
}

func (s *GormNotifications) MarkNotificationRead(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		// already read rows still match; only a missing row lands here
		if _, err := s.GetNotification(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *GormNotifications) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res := s.scope(ctx, recipientID, true).Update("read", true)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "mark all notifications read")
	}
	return res.RowsAffected, nil
}

func (s *GormNotifications) DeleteNotification(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Notification{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete notification")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
