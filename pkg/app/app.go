// Package app assembles stores, registry, push transport and services from
// configuration. Every process under apps/ starts from here.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/auth"
	"github.com/mahaj/bizchat/pkg/config"
	"github.com/mahaj/bizchat/pkg/db"
	"github.com/mahaj/bizchat/pkg/httpapi"
	"github.com/mahaj/bizchat/pkg/keylock"
	"github.com/mahaj/bizchat/pkg/messaging"
	"github.com/mahaj/bizchat/pkg/notification"
	"github.com/mahaj/bizchat/pkg/push"
	"github.com/mahaj/bizchat/pkg/registry"
	"github.com/mahaj/bizchat/pkg/snowflake"
	"github.com/mahaj/bizchat/pkg/store"
	"github.com/mahaj/bizchat/pkg/ws"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const lockTTL = 5 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Verifier      *auth.Verifier
	Registry      registry.Registry
	Presence      httpapi.PresenceChecker
	Pusher        push.Pusher
	Messages      *messaging.Service
	Notifications *notification.Service

	runners []runner
	closers []func() error
}

func New(cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, Verifier: auth.NewVerifier(cfg.JWTSecret)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "snowflake node")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		log.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	local := registry.NewLocal()
	a.Registry, a.Presence = local, local
	if rdb != nil {
		p := registry.NewPresence(local, rdb)
		a.Registry, a.Presence = p, p
		a.runners = append(a.runners, p)
	}
	direct := push.NewDirect(a.Registry, cfg.PushTimeout)

	switch cfg.PushBus {
	case "kafka":
		pub := push.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		a.closers = append(a.closers, pub.Close)
		a.Pusher = pub
		a.runners = append(a.runners, push.NewKafkaFanout(cfg.KafkaBrokers, cfg.EventsTopic, direct))
	case "redis":
		a.Pusher = push.NewRedisPublisher(rdb)
		a.runners = append(a.runners, push.NewRedisFanout(rdb, direct))
	default:
		a.Pusher = direct
	}

	var locks keylock.Locker = keylock.NewLocal()
	if cfg.LockBackend == "redis" {
		locks = keylock.NewRedis(rdb, lockTTL)
	}

	conversations, err := a.conversationStore()
	if err != nil {
		return nil, err
	}
	notifications, err := a.notificationStore()
	if err != nil {
		return nil, err
	}

	a.Messages = messaging.NewService(conversations, locks, ids, a.Pusher)
	a.Notifications = notification.NewService(notifications, ids, a.Pusher)
	return a, nil
}

func (a *App) conversationStore() (store.ConversationStore, error) {
	cfg := a.Config
	if cfg.StoreBackend != "scylla" {
		return store.NewMemory(), nil
	}
	if cfg.Env == "dev" {
		if err := db.CreateKeyspace(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
			return nil, errors.Wrap(err, "create keyspace")
		}
	}
	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		return nil, errors.Wrap(err, "connect scylla")
	}
	a.closers = append(a.closers, func() error { session.Close(); return nil })
	if cfg.Env == "dev" {
		if err := db.Migrate(session); err != nil {
			return nil, errors.Wrap(err, "migrate scylla")
		}
	}
	return store.NewScylla(session), nil
}

func (a *App) notificationStore() (store.NotificationStore, error) {
	cfg := a.Config
	if cfg.NotificationBackend != "postgres" {
		return store.NewMemoryNotifications(), nil
	}
	gormDB, err := db.OpenPostgres(cfg.PostgresDSN(), cfg.Env == "dev")
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	return store.NewGormNotifications(gormDB), nil
}

// WebSocket returns the /ws handler bound to this node's registry.
func (a *App) WebSocket() *ws.Handler {
	return ws.NewHandler(a.Verifier, a.Registry, a.Messages)
}

func (a *App) HTTP() *httpapi.Server {
	return &httpapi.Server{
		Verifier:      a.Verifier,
		Messages:      a.Messages,
		Notifications: a.Notifications,
		Presence:      a.Presence,
		WebSocket:     a.WebSocket(),
		SendRateLimit: a.Config.SendRateLimit,
		DevLogin:      a.Config.Env == "dev",
	}
}

// Run drives this node's background loops until ctx is done: bus events
// into local sockets and the presence heartbeat. With the local bus and no
// Redis there is nothing to run and it just waits.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}
	<-ctx.Done()
	return g.Wait()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}
