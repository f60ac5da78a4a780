package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/config"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/push"
	"github.com/mahaj/bizchat/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		JWTSecret:           "secret",
		NodeID:              3,
		StoreBackend:        "memory",
		NotificationBackend: "memory",
		PushBus:             "local",
		LockBackend:         "local",
		PushTimeout:         time.Second,
		SendRateLimit:       5,
	}
}

func TestNewInMemory(t *testing.T) {
	a, err := New(baseConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &push.Direct{}, a.Pusher)
	assert.IsType(t, &registry.Local{}, a.Registry)

	gin.SetMode(gin.TestMode)
	router := a.HTTP().Router()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.PushBus = "redis"
	cfg.LockBackend = "redis"

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &push.RedisPublisher{}, a.Pusher)
	assert.IsType(t, &registry.Presence{}, a.Registry)

	ctx := context.Background()
	c, err := a.Messages.CreateConversation(ctx, "alice", model.ConversationUserUser, []string{"bob"}, "")
	require.NoError(t, err)
	_, err = a.Messages.SendMessage(ctx, "alice", c.ID, model.Content{Type: model.ContentText, Text: "over redis"})
	require.NoError(t, err)
}

func TestNewFailsWithoutRedis(t *testing.T) {
	cfg := baseConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := New(cfg)
	assert.Error(t, err)
}
