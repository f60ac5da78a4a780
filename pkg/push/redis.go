package push

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const userChannelPrefix = "push:user:"

func userChannel(userID string) string {
	return userChannelPrefix + userID
}

// RedisPublisher publishes one message per addressee on a private
// channel, so only nodes holding that user's handles do any work.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Push(ctx context.Context, userIDs []string, ev model.Event) error {
	if len(userIDs) == 0 {
		return nil
	}
	payload, err := ev.Encode()
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	pipe := p.rdb.Pipeline()
	for _, id := range userIDs {
		pipe.Publish(ctx, userChannel(id), payload)
	}
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "publish push events")
}

// RedisFanout pattern-subscribes to every private channel and delivers to
// handles on this node.
type RedisFanout struct {
	rdb   *redis.Client
	local *Direct
}

func NewRedisFanout(rdb *redis.Client, local *Direct) *RedisFanout {
	return &RedisFanout{rdb: rdb, local: local}
}

func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.rdb.PSubscribe(ctx, userChannelPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe push channels")
	}
	log.Info("redis fanout started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)
			if err := f.local.Deliver(ctx, []string{userID}, []byte(msg.Payload)); err != nil {
				log.Debug("fanout delivery incomplete", "user", userID, "err", err)
			}
		}
	}
}
