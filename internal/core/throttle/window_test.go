package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a settable clock shared by counters under test.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindowCounterSaturatesWithinSecond(t *testing.T) {
	clock := newManualClock()
	counter, err := NewWindowCounter(3, clock.Now)
	require.NoError(t, err)

	require.True(t, counter.Take())
	require.True(t, counter.Take())
	require.True(t, counter.Take())
	require.False(t, counter.Take())
	require.False(t, counter.Take())
	require.Equal(t, 0, counter.Remaining())
}

func TestWindowCounterResetsOnNextSecond(t *testing.T) {
	clock := newManualClock()
	counter, err := NewWindowCounter(2, clock.Now)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		counter.Take()
	}
	require.False(t, counter.Take())

	clock.Advance(time.Second)
	require.Equal(t, 2, counter.Remaining())
	require.True(t, counter.Take())
	require.True(t, counter.Take())
	require.False(t, counter.Take())
}

func TestWindowCounterSubSecondStepsShareBudget(t *testing.T) {
	clock := newManualClock()
	counter, err := NewWindowCounter(2, clock.Now)
	require.NoError(t, err)

	require.True(t, counter.Take())
	clock.Advance(400 * time.Millisecond)
	require.True(t, counter.Take())
	clock.Advance(400 * time.Millisecond)
	require.False(t, counter.Take())
	clock.Advance(200 * time.Millisecond)
	require.True(t, counter.Take())
}

func TestWindowCounterRejectsNonPositiveLimit(t *testing.T) {
	_, err := NewWindowCounter(0, nil)
	require.Error(t, err)

	_, err = NewWindowCounter(-3, nil)
	require.Error(t, err)
}

func TestWindowCounterConcurrentTakesAdmitExactlyLimit(t *testing.T) {
	clock := newManualClock()
	const limit = 50
	counter, err := NewWindowCounter(limit, clock.Now)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if counter.Take() {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
}

func TestWindowCounterDefaultsToWallClock(t *testing.T) {
	counter, err := NewWindowCounter(1, nil)
	require.NoError(t, err)
	require.Equal(t, 1, counter.Limit())
	require.LessOrEqual(t, counter.Remaining(), 1)
}

func TestWindowCounterIgnoresStaleSecond(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var current atomic.Int64
	current.Store(base.Unix())
	clock := func() time.Time { return time.Unix(current.Load(), 0) }

	counter, err := NewWindowCounter(1, clock)
	require.NoError(t, err)
	require.True(t, counter.Take())

	current.Store(base.Unix() + 1)
	require.True(t, counter.Take())

	// A caller still holding the previous second must not reopen it.
	current.Store(base.Unix())
	require.False(t, counter.Take())
	require.Equal(t, 0, counter.Remaining())

	current.Store(base.Unix() + 1)
	require.False(t, counter.Take())
}

func TestWindowCounterConcurrentTakesAcrossSecondBoundary(t *testing.T) {
	const limit = 5
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Unix()

	// Before the flip every reading is the old second; afterwards readings
	// alternate between the old and new second, as lagging callers would.
	var (
		flipped atomic.Bool
		calls   atomic.Int64
	)
	clock := func() time.Time {
		if !flipped.Load() || calls.Add(1)%2 == 0 {
			return time.Unix(base, 0)
		}
		return time.Unix(base+1, 0)
	}

	counter, err := NewWindowCounter(limit, clock)
	require.NoError(t, err)

	takeAll := func() int64 {
		var (
			wg      sync.WaitGroup
			allowed atomic.Int64
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					if counter.Take() {
						allowed.Add(1)
					}
				}
			}()
		}
		wg.Wait()
		return allowed.Load()
	}

	assert.Equal(t, int64(limit), takeAll())

	flipped.Store(true)
	assert.Equal(t, int64(limit), takeAll())
}
