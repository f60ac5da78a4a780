package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresence(t *testing.T) (*Presence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresence(NewLocal(), rdb), mr
}

func TestPresenceTracksHandles(t *testing.T) {
	p, mr := newPresence(t)
	ctx := context.Background()

	p.Register("alice", fakeHandle("h1"))
	p.Register("alice", fakeHandle("h2"))

	online, err := p.Online(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
	members, err := mr.ZMembers("presence:user:alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h1", "h2"}, members)

	p.Unregister(fakeHandle("h1"))
	p.Unregister(fakeHandle("h2"))
	online, err = p.Online(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
	assert.Empty(t, p.HandlesFor("alice"))
}

func TestPresenceMovesHandle(t *testing.T) {
	p, _ := newPresence(t)
	ctx := context.Background()

	p.Register("alice", fakeHandle("h1"))
	p.Register("bob", fakeHandle("h1"))

	alice, err := p.Online(ctx, "alice")
	require.NoError(t, err)
	bob, err := p.Online(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, alice)
	assert.True(t, bob)
}

func TestPresenceSurvivesRedisOutage(t *testing.T) {
	p, mr := newPresence(t)
	mr.Close()

	p.Register("alice", fakeHandle("h1"))
	assert.Len(t, p.HandlesFor("alice"), 1)
	p.Unregister(fakeHandle("h1"))
	assert.Empty(t, p.HandlesFor("alice"))
}

func TestPresenceExpiresWithoutRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	start := time.Now()
	crashed := NewPresence(NewLocal(), rdb)
	crashed.now = func() time.Time { return start }
	crashed.Register("alice", fakeHandle("h1"))

	observer := NewPresence(NewLocal(), rdb)
	observer.now = func() time.Time { return start.Add(presenceTTL / 2) }
	online, err := observer.Online(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	// the first node never refreshes again
	observer.now = func() time.Time { return start.Add(presenceTTL + time.Second) }
	online, err = observer.Online(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
	assert.False(t, mr.Exists("presence:user:alice"), "expired handles are pruned")
}

func TestPresenceRefreshKeepsHandlesOnline(t *testing.T) {
	p, _ := newPresence(t)
	ctx := context.Background()
	start := time.Now()
	p.now = func() time.Time { return start }
	p.Register("alice", fakeHandle("h1"))

	p.now = func() time.Time { return start.Add(presenceTTL - time.Second) }
	require.NoError(t, p.Refresh(ctx))

	p.now = func() time.Time { return start.Add(presenceTTL + time.Second) }
	online, err := p.Online(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}
