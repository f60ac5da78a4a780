package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// Node hands out time-ordered int64 ids. Ids from one node are strictly
// increasing, so (Time(id), id) ordering matches generation order.
type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	return newNode(node, time.Now)
}

func newNode(node int64, now func() time.Time) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{node: node, now: now}, nil
}

func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()
	if now < n.time {
		// clock moved backwards; keep ids monotonic
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// sequence exhausted for this millisecond, borrow the next one
			now++
		}
	} else {
		n.step = 0
	}

	n.time = now
	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time returns the millisecond timestamp embedded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch).UTC()
}
