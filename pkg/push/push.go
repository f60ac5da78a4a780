// Package push delivers live events to users' handles, either straight
// through the local registry or across nodes over Kafka or Redis.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/registry"
	"golang.org/x/sync/errgroup"
)

// Pusher is what services use to fan an event out to users. An error
// only ever means delivery failed; the caller's write already happened.
type Pusher interface {
	Push(ctx context.Context, userIDs []string, ev model.Event) error
}

// Direct writes to handles found in a registry on this node.
type Direct struct {
	reg     registry.Registry
	timeout time.Duration
}

func NewDirect(reg registry.Registry, timeout time.Duration) *Direct {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Direct{reg: reg, timeout: timeout}
}

func (d *Direct) Push(ctx context.Context, userIDs []string, ev model.Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	return d.Deliver(ctx, userIDs, payload)
}

// Deliver sends an encoded frame to every live handle of userIDs. Handles
// are written concurrently, each under its own timeout, so a stuck socket
// costs the caller at most one timeout and never delays the others.
func (d *Direct) Deliver(ctx context.Context, userIDs []string, payload []byte) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, userID := range userIDs {
		userID := userID
		for _, h := range d.reg.HandlesFor(userID) {
			h := h
			g.Go(func() error {
				sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
				defer cancel()
				if err := h.Send(sendCtx, payload); err != nil {
					mu.Lock()
					errs = append(errs, apperr.Delivery(userID, err))
					mu.Unlock()
				}
				return nil
			})
		}
	}
	g.Wait()
	return errors.Join(errs...)
}

// Nop drops every event. Processes without live clients, like the
// notifier when no bus is configured, use it.
type Nop struct{}

func (Nop) Push(context.Context, []string, model.Event) error { return nil }
