package messaging

import (
	"sort"
	"sync"
	"time"
)

type typingEntry struct {
	timer *time.Timer
}

// typingTracker keeps who is typing where. Entries expire after ttl unless
// refreshed, and the expire callback fires only for the entry it was armed
// for.
type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	byConv map[string]map[string]*typingEntry
}

func newTypingTracker(ttl time.Duration) *typingTracker {
	return &typingTracker{ttl: ttl, byConv: make(map[string]map[string]*typingEntry)}
}

func (t *typingTracker) start(conversationID, userID string, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.byConv[conversationID]
	if users == nil {
		users = make(map[string]*typingEntry)
		t.byConv[conversationID] = users
	}
	if prev, ok := users[userID]; ok {
		prev.timer.Stop()
	}

	e := &typingEntry{}
	users[userID] = e
	e.timer = time.AfterFunc(t.ttl, func() {
		if t.expire(conversationID, userID, e) {
			onExpire()
		}
	})
}

func (t *typingTracker) expire(conversationID, userID string, e *typingEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byConv[conversationID][userID] != e {
		return false
	}
	t.removeLocked(conversationID, userID)
	return true
}

// stop clears userID and reports whether they were typing.
func (t *typingTracker) stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byConv[conversationID][userID]
	if !ok {
		return false
	}
	e.timer.Stop()
	t.removeLocked(conversationID, userID)
	return true
}

func (t *typingTracker) removeLocked(conversationID, userID string) {
	users := t.byConv[conversationID]
	delete(users, userID)
	if len(users) == 0 {
		delete(t.byConv, conversationID)
	}
}

func (t *typingTracker) users(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byConv[conversationID]))
	for id := range t.byConv[conversationID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
