// Package registry tracks which live connections belong to which user.
// It owns no business state; a handle only exists while its socket is open.
package registry

import (
	"context"
	"sync"
)

// Handle is a live connection that events can be pushed to.
type Handle interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

type Registry interface {
	Register(userID string, h Handle)
	Unregister(h Handle)
	HandlesFor(userID string) []Handle
}

// Local is the in-process registry used by every gateway node.
type Local struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]Handle // user_id -> handle_id -> handle
	ownerOf map[string]string            // handle_id -> user_id
}

func NewLocal() *Local {
	return &Local{
		byUser:  make(map[string]map[string]Handle),
		ownerOf: make(map[string]string),
	}
}

// Register adds h to userID's live set. Registering a handle already owned
// by another user moves it, so the last call wins.
func (r *Local) Register(userID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.ownerOf[h.ID()]; ok && owner != userID {
		r.removeLocked(owner, h.ID())
	}

	handles := r.byUser[userID]
	if handles == nil {
		handles = make(map[string]Handle)
		r.byUser[userID] = handles
	}
	handles[h.ID()] = h
	r.ownerOf[h.ID()] = userID
}

func (r *Local) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.ownerOf[h.ID()]
	if !ok {
		return
	}
	r.removeLocked(owner, h.ID())
}

// Owner reports which user a handle is registered under.
func (r *Local) Owner(handleID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.ownerOf[handleID]
	return owner, ok
}

// Owners snapshots handle id -> user id for every registered handle.
func (r *Local) Owners() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.ownerOf))
	for h, u := range r.ownerOf {
		out[h] = u
	}
	return out
}

func (r *Local) HandlesFor(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.byUser[userID]
	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
	}
	return out
}

func (r *Local) removeLocked(userID, handleID string) {
	delete(r.ownerOf, handleID)
	if handles, ok := r.byUser[userID]; ok {
		delete(handles, handleID)
		if len(handles) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// Online reports whether userID has a live handle on this node.
func (r *Local) Online(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0, nil
}
