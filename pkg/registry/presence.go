package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	presenceTimeout = time.Second
	// presenceTTL is how long a handle counts as online without a refresh.
	// A node that dies stops refreshing and its handles age out.
	presenceTTL     = 90 * time.Second
	presenceRefresh = presenceTTL / 3
)

// Presence decorates a Local registry and mirrors registrations into Redis
// so any node can tell whether a user has a live connection somewhere.
// Each user's handles live in a sorted set scored by expiry time.
type Presence struct {
	*Local
	redis *redis.Client
	now   func() time.Time
}

func NewPresence(inner *Local, rdb *redis.Client) *Presence {
	return &Presence{Local: inner, redis: rdb, now: time.Now}
}

func presenceKey(userID string) string {
	return "presence:user:" + userID
}

func (p *Presence) Register(userID string, h Handle) {
	prev, moved := p.Local.Owner(h.ID())
	p.Local.Register(userID, h)

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if moved && prev != userID {
		p.remove(ctx, prev, h.ID())
	}
	if _, err := p.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		p.touch(ctx, pipe, userID, h.ID())
		return nil
	}); err != nil {
		log.Warn("failed to set presence", "user", userID, "handle", h.ID(), "err", err)
	}
}

func (p *Presence) touch(ctx context.Context, pipe redis.Pipeliner, userID, handleID string) {
	key := presenceKey(userID)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(p.now().Add(presenceTTL).UnixMilli()), Member: handleID})
	pipe.Expire(ctx, key, presenceTTL)
}

func (p *Presence) Unregister(h Handle) {
	owner, ok := p.Local.Owner(h.ID())
	p.Local.Unregister(h)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	p.remove(ctx, owner, h.ID())
}

func (p *Presence) remove(ctx context.Context, userID, handleID string) {
	if err := p.redis.ZRem(ctx, presenceKey(userID), handleID).Err(); err != nil {
		log.Warn("failed to delete presence", "user", userID, "handle", handleID, "err", err)
	}
}

// Refresh pushes the expiry of every handle on this node forward.
func (p *Presence) Refresh(ctx context.Context) error {
	owners := p.Local.Owners()
	if len(owners) == 0 {
		return nil
	}
	_, err := p.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for handleID, userID := range owners {
			p.touch(ctx, pipe, userID, handleID)
		}
		return nil
	})
	return err
}

// Run refreshes this node's handles until ctx is done.
func (p *Presence) Run(ctx context.Context) error {
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				log.Warn("presence refresh failed", "err", err)
			}
		}
	}
}

// Online reports whether userID has at least one unexpired handle on any
// node. Expired entries are pruned on the way.
func (p *Presence) Online(ctx context.Context, userID string) (bool, error) {
	key := presenceKey(userID)
	now := strconv.FormatInt(p.now().UnixMilli(), 10)
	if err := p.redis.ZRemRangeByScore(ctx, key, "-inf", "("+now).Err(); err != nil {
		return false, err
	}
	n, err := p.redis.ZCount(ctx, key, now, "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
