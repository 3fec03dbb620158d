package throttle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/core"
)

// FetchFunc loads the limit for one identity. It must honor ctx cancellation.
type FetchFunc func(ctx context.Context, identity string) (core.Limit, error)

// resolution is the handle for one in-flight fetch.
type resolution struct {
	identity string
	started  time.Time
	done     chan struct{}
}

type failureState struct {
	attempts int
	retryAt  time.Time
}

// Tracker keeps at most one outstanding limit fetch per identity and installs
// completed limits into the cache.
type Tracker struct {
	cache    *LimitCache
	exec     *Executor
	clock    Clock
	logger   *logging.Logger
	recorder Recorder

	fetchTimeout    time.Duration
	retryBackoff    time.Duration
	retryBackoffMax time.Duration

	pending      sync.Map // identity -> *resolution
	pendingMu    sync.Mutex
	pendingCount atomic.Int64
	failures     sync.Map // identity -> failureState
}

// TrackerConfig holds the fetch policy.
type TrackerConfig struct {
	FetchTimeout    time.Duration
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

// NewTracker wires a tracker to the cache it fills and the executor it runs on.
func NewTracker(cache *LimitCache, exec *Executor, cfg TrackerConfig, clock Clock, logger *logging.Logger, recorder Recorder) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{
		cache:           cache,
		exec:            exec,
		clock:           clock,
		logger:          logger,
		recorder:        recorder,
		fetchTimeout:    cfg.FetchTimeout,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffMax: cfg.RetryBackoffMax,
	}
}

// EnsureResolving starts a fetch for identity unless one is already running.
// It never waits for the fetch.
func (t *Tracker) EnsureResolving(identity string, fetch FetchFunc) {
	if t.backingOff(identity) {
		return
	}

	res := &resolution{
		identity: identity,
		started:  t.clock(),
		done:     make(chan struct{}),
	}
	if _, loaded := t.pending.LoadOrStore(identity, res); loaded {
		return
	}
	t.addPending(1)

	// A fetch that completed between the caller's cache miss and our
	// registration has already installed the counter.
	if _, ok := t.cache.Get(identity); ok {
		t.complete(res)
		return
	}

	err := t.exec.TrySubmit(func(ctx context.Context) {
		t.resolve(ctx, res, fetch)
	})
	if err != nil {
		t.complete(res)
		t.recorder.RecordResolution(OutcomeRejected, 0)
		if t.logger != nil {
			t.logger.Debug("Limit resolution not dispatched",
				zap.String("identity", identity),
				zap.Error(err))
		}
	}
}

// IsPending reports whether a fetch for identity is in flight.
func (t *Tracker) IsPending(identity string) bool {
	_, ok := t.pending.Load(identity)
	return ok
}

// Pending returns the number of in-flight fetches.
func (t *Tracker) Pending() int {
	return int(t.pendingCount.Load())
}

// Wait blocks until the in-flight fetch for identity finishes or ctx is done.
// It returns immediately when nothing is pending.
func (t *Tracker) Wait(ctx context.Context, identity string) error {
	value, ok := t.pending.Load(identity)
	if !ok {
		return nil
	}
	select {
	case <-value.(*resolution).done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) resolve(ctx context.Context, res *resolution, fetch FetchFunc) {
	defer t.complete(res)

	limit, err := t.fetch(ctx, res.identity, fetch)
	elapsed := t.clock().Sub(res.started)
	if err != nil {
		t.recordFailure(res.identity, err)
		t.recorder.RecordResolution(OutcomeFailed, elapsed)
		return
	}

	counter, err := NewWindowCounter(limit.RPS, t.clock)
	if err != nil {
		t.recordFailure(res.identity, err)
		t.recorder.RecordResolution(OutcomeFailed, elapsed)
		return
	}

	if _, inserted := t.cache.PutIfAbsent(res.identity, counter); inserted {
		t.recorder.SetCachedIdentities(t.cache.Len())
		if t.logger != nil {
			t.logger.Info("Installed identity limit",
				zap.String("identity", res.identity),
				zap.Int("rps", limit.RPS),
				zap.Duration("elapsed", elapsed))
		}
	}
	t.failures.Delete(res.identity)
	t.recorder.RecordResolution(OutcomeResolved, elapsed)
}

// fetch runs one attempt under the fetch timeout. Panics in the source are
// reported as errors so the pending entry is always released.
func (t *Tracker) fetch(ctx context.Context, identity string, fetch FetchFunc) (core.Limit, error) {
	if t.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.fetchTimeout)
		defer cancel()
	}

	var (
		limit core.Limit
		err   error
		pc    panics.Catcher
	)
	pc.Try(func() {
		limit, err = fetch(ctx, identity)
	})
	if recovered := pc.Recovered(); recovered != nil {
		return core.Limit{}, fmt.Errorf("fetch limit for %q: %w", identity, recovered.AsError())
	}
	if err != nil {
		return core.Limit{}, fmt.Errorf("fetch limit for %q: %w", identity, err)
	}
	if err := limit.Validate(); err != nil {
		return core.Limit{}, err
	}
	return limit, nil
}

// complete removes the pending entry. It runs after any install so that a
// caller who no longer sees the entry is guaranteed to see the counter.
func (t *Tracker) complete(res *resolution) {
	if t.pending.CompareAndDelete(res.identity, res) {
		t.addPending(-1)
	}
	close(res.done)
}

// addPending adjusts the in-flight count and publishes it. The mutex keeps
// gauge updates in the same order as the count changes.
func (t *Tracker) addPending(delta int64) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	t.recorder.SetPendingResolutions(int(t.pendingCount.Add(delta)))
}

func (t *Tracker) recordFailure(identity string, err error) {
	attempts := 1
	if value, ok := t.failures.Load(identity); ok {
		attempts = value.(failureState).attempts + 1
	}

	state := failureState{attempts: attempts}
	if t.retryBackoff > 0 {
		state.retryAt = t.clock().Add(t.backoff(attempts))
	}
	t.failures.Store(identity, state)

	if t.logger != nil {
		fields := []zap.Field{
			zap.String("identity", identity),
			zap.Int("attempts", attempts),
			zap.Error(err),
		}
		if !state.retryAt.IsZero() {
			fields = append(fields, zap.Time("retry_at", state.retryAt))
		}
		t.logger.Warn("Limit resolution failed; identity stays on guest budget", fields...)
	}
}

func (t *Tracker) backingOff(identity string) bool {
	if t.retryBackoff <= 0 {
		return false
	}
	value, ok := t.failures.Load(identity)
	if !ok {
		return false
	}
	return t.clock().Before(value.(failureState).retryAt)
}

// backoff doubles from retryBackoff per consecutive failure, capped at
// retryBackoffMax when set.
func (t *Tracker) backoff(attempts int) time.Duration {
	delay := t.retryBackoff
	for i := 1; i < attempts; i++ {
		if t.retryBackoffMax > 0 && delay >= t.retryBackoffMax {
			break
		}
		delay *= 2
	}
	if t.retryBackoffMax > 0 && delay > t.retryBackoffMax {
		delay = t.retryBackoffMax
	}
	return delay
}
