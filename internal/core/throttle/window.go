package throttle

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time. Tests inject fixed or stepping clocks.
type Clock func() time.Time

// WindowCounter admits up to limit calls per calendar second.
//
// The clock read and the reset-and-decrement sequence run under a
// per-counter mutex, so two counters never contend with each other.
// remaining may go negative once the budget is spent; it is restored
// wholesale when the second rolls over.
type WindowCounter struct {
	limit int64
	clock Clock

	mu           sync.Mutex
	remaining    int64
	windowSecond int64
}

// NewWindowCounter returns a counter with a full budget for the current second.
func NewWindowCounter(limit int, clock Clock) (*WindowCounter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("window counter limit must be positive, got %d", limit)
	}
	if clock == nil {
		clock = time.Now
	}
	return &WindowCounter{
		limit:        int64(limit),
		clock:        clock,
		remaining:    int64(limit),
		windowSecond: clock().Unix(),
	}, nil
}

// Take consumes one unit of the current second's budget and reports whether
// the call fits within it. The clock is read under the lock and the window
// only moves forward, so a stale reading is charged to the newer window.
func (c *WindowCounter) Take() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now := c.clock().Unix(); now > c.windowSecond {
		c.windowSecond = now
		c.remaining = c.limit
	}
	c.remaining--
	return c.remaining >= 0
}

// Limit returns the per-second budget.
func (c *WindowCounter) Limit() int {
	return int(c.limit)
}

// Remaining returns the budget left in the current second without consuming it.
func (c *WindowCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clock().Unix() > c.windowSecond {
		return int(c.limit)
	}
	if c.remaining < 0 {
		return 0
	}
	return int(c.remaining)
}
