package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.Error(t, err)
	_, err = NewNode(1024)
	assert.Error(t, err)
	_, err = NewNode(1023)
	assert.NoError(t, err)
}

func TestGenerateMonotonicUnderFrozenClock(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n, err := newNode(3, func() time.Time { return frozen })
	require.NoError(t, err)

	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerateClockBackwards(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n, err := newNode(1, func() time.Time { return now })
	require.NoError(t, err)

	first := n.Generate()
	now = now.Add(-time.Second)
	assert.Greater(t, n.Generate(), first)
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 123e6, time.UTC)
	n, err := newNode(7, func() time.Time { return at })
	require.NoError(t, err)
	assert.True(t, Time(n.Generate()).Equal(at))
}

func TestGenerateConcurrentUnique(t *testing.T) {
	n, err := NewNode(2)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := n.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}
