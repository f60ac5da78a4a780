package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedConversation(t, s)

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	c.UnreadCounts["bob"] = 99
	c.Participants[0] = "mallory"

	again, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.UnreadCounts["bob"])
	assert.Equal(t, "alice", again.Participants[0])
}
