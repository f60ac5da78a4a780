package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mahaj/bizchat/pkg/db"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteNotifications(t *testing.T) *GormNotifications {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// each connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateNotifications(gormDB))
	return NewGormNotifications(gormDB)
}

func TestNotificationStores(t *testing.T) {
	backends := map[string]func(t *testing.T) NotificationStore{
		"memory": func(*testing.T) NotificationStore { return NewMemoryNotifications() },
		"gorm":   func(t *testing.T) NotificationStore { return newSQLiteNotifications(t) },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			exerciseNotificationStore(t, open(t))
		})
	}
}

func exerciseNotificationStore(t *testing.T, s NotificationStore) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 5; i++ {
		n := &model.Notification{
			ID:          i,
			RecipientID: "rita",
			Type:        model.NotificationNewReview,
			Title:       "New review",
			Message:     "Someone reviewed your shop",
			Payload:     json.RawMessage(`{"businessId":"b1","reviewId":"r1","rating":5}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateNotification(ctx, n))
	}
	require.NoError(t, s.CreateNotification(ctx, &model.Notification{
		ID: 99, RecipientID: "other", Type: model.NotificationNewFollower, Title: "New follower", CreatedAt: base,
	}))

	got, err := s.GetNotification(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "rita", got.RecipientID)
	assert.JSONEq(t, `{"businessId":"b1","reviewId":"r1","rating":5}`, string(got.Payload))

	_, err = s.GetNotification(ctx, 1234)
	assert.ErrorIs(t, err, ErrNotFound)

	page, total, err := s.ListNotifications(ctx, NotificationQuery{RecipientID: "rita", Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].ID)
	assert.Equal(t, int64(4), page[1].ID)

	page, _, err = s.ListNotifications(ctx, NotificationQuery{RecipientID: "rita", Offset: 4, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].ID)

	require.NoError(t, s.MarkNotificationRead(ctx, 5))
	require.NoError(t, s.MarkNotificationRead(ctx, 5))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, 1234), ErrNotFound)

	unread, err := s.CountUnread(ctx, "rita")
	require.NoError(t, err)
	assert.EqualValues(t, 4, unread)

	page, total, err = s.ListNotifications(ctx, NotificationQuery{RecipientID: "rita", UnreadOnly: true, Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	for _, n := range page {
		assert.False(t, n.Read)
	}

	affected, err := s.MarkAllNotificationsRead(ctx, "rita")
	require.NoError(t, err)
	assert.EqualValues(t, 4, affected)
	affected, err = s.MarkAllNotificationsRead(ctx, "rita")
	require.NoError(t, err)
	assert.Zero(t, affected)

	other, err := s.CountUnread(ctx, "other")
	require.NoError(t, err)
	assert.EqualValues(t, 1, other)

	require.NoError(t, s.DeleteNotification(ctx, 3))
	assert.ErrorIs(t, s.DeleteNotification(ctx, 3), ErrNotFound)
	_, total, err = s.ListNotifications(ctx, NotificationQuery{RecipientID: "rita", Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}
