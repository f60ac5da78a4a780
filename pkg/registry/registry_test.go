package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHandle string

func (f fakeHandle) ID() string                         { return string(f) }
func (f fakeHandle) Send(context.Context, []byte) error { return nil }

func ids(handles []Handle) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.ID())
	}
	return out
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewLocal()
	h := fakeHandle("h1")
	r.Register("alice", h)
	r.Register("alice", h)

	assert.Equal(t, []string{"h1"}, ids(r.HandlesFor("alice")))
}

func TestMultipleDevices(t *testing.T) {
	r := NewLocal()
	r.Register("alice", fakeHandle("phone"))
	r.Register("alice", fakeHandle("laptop"))

	assert.ElementsMatch(t, []string{"phone", "laptop"}, ids(r.HandlesFor("alice")))
	assert.Empty(t, r.HandlesFor("bob"))
}

func TestHandleBelongsToOneUser(t *testing.T) {
	r := NewLocal()
	h := fakeHandle("h1")
	r.Register("alice", h)
	r.Register("bob", h)

	assert.Empty(t, r.HandlesFor("alice"))
	assert.Equal(t, []string{"h1"}, ids(r.HandlesFor("bob")))
	owner, ok := r.Owner("h1")
	assert.True(t, ok)
	assert.Equal(t, "bob", owner)
}

func TestUnregister(t *testing.T) {
	r := NewLocal()
	h := fakeHandle("h1")
	r.Unregister(h) // unknown handle is a no-op

	r.Register("alice", h)
	r.Unregister(h)
	assert.Empty(t, r.HandlesFor("alice"))

	online, err := r.Online(context.Background(), "alice")
	assert.NoError(t, err)
	assert.False(t, online)
}

func TestRegisterUnregisterSequence(t *testing.T) {
	r := NewLocal()
	h := fakeHandle("h1")
	r.Register("alice", h)
	r.Unregister(h)
	r.Register("alice", h)
	assert.Len(t, r.HandlesFor("alice"), 1)
}

func TestConcurrentUsers(t *testing.T) {
	r := NewLocal()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := fakeHandle(string(rune('a'+i%26)) + "-" + string(rune('0'+i/26)))
			r.Register("user", h)
			_ = r.HandlesFor("user")
			r.Unregister(h)
		}(i)
	}
	wg.Wait()
	assert.Empty(t, r.HandlesFor("user"))
}
