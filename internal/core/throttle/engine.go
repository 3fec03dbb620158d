package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/throttlegate/throttlegate/internal/core"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultGuestRPS     = 10
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultFetchTimeout = 5 * time.Second
)

// IdentityResolver maps a caller token to its identity. Unknown tokens yield
// an error wrapping core.ErrUnknownIdentity. Implementations answer from
// memory; they are called on the request path.
type IdentityResolver interface {
	Resolve(token string) (string, error)
}

// LimitSource fetches the SLA for an identity. It may be slow and is only
// ever called from executor workers.
type LimitSource interface {
	FetchLimit(ctx context.Context, identity string) (core.Limit, error)
}

// Config configures an Engine.
type Config struct {
	GuestRPS int

	Workers       int
	QueueSize     int
	DispatchRate  float64
	DispatchBurst int

	FetchTimeout    time.Duration
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	Clock Clock
}

// Option customizes an Engine.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	recorder Recorder
}

// WithLogger routes engine logs to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// Engine decides whether a request may proceed.
type Engine struct {
	guest    *WindowCounter
	cache    *LimitCache
	tracker  *Tracker
	exec     *Executor
	resolver IdentityResolver
	source   LimitSource
	recorder Recorder

	closeOnce sync.Once
}

// Stats is a snapshot of engine state for operators.
type Stats struct {
	GuestLimit     int          `json:"guest_limit"`
	GuestRemaining int          `json:"guest_remaining"`
	Identities     []CacheEntry `json:"identities"`
	Pending        int          `json:"pending"`
	Queued         int          `json:"queued"`
}

// New builds an engine and starts its executor. Call Close to stop it.
func New(cfg Config, resolver IdentityResolver, source LimitSource, opts ...Option) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if source == nil {
		return nil, fmt.Errorf("limit source is required")
	}

	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	guestRPS := cfg.GuestRPS
	if guestRPS == 0 {
		guestRPS = DefaultGuestRPS
	}
	guest, err := NewWindowCounter(guestRPS, cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("guest counter: %w", err)
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	cache := NewLimitCache()
	exec := NewExecutor(ExecutorConfig{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		DispatchRate:  cfg.DispatchRate,
		DispatchBurst: cfg.DispatchBurst,
	})
	tracker := NewTracker(cache, exec, TrackerConfig{
		FetchTimeout:    fetchTimeout,
		RetryBackoff:    cfg.RetryBackoff,
		RetryBackoffMax: cfg.RetryBackoffMax,
	}, cfg.Clock, o.logger, o.recorder)

	return &Engine{
		guest:    guest,
		cache:    cache,
		tracker:  tracker,
		exec:     exec,
		resolver: resolver,
		source:   source,
		recorder: o.recorder,
	}, nil
}

// Decision describes one admission outcome.
type Decision struct {
	Allowed  bool
	Path     Path
	Identity string
}

// IsRequestAllowed charges one call against the caller's budget.
//
// An empty token is a guest and uses the shared guest budget. A token whose
// identity has a cached limit uses that identity's budget. Any other known
// token starts (or joins) a background limit fetch and borrows the guest
// budget meanwhile. Unknown tokens return an error wrapping
// core.ErrUnknownIdentity and consume nothing.
func (e *Engine) IsRequestAllowed(token string) (bool, error) {
	d, err := e.Decide(token)
	return d.Allowed, err
}

// Decide is IsRequestAllowed with the budget that was charged.
func (e *Engine) Decide(token string) (Decision, error) {
	if token == "" {
		return e.take(e.guest, PathGuest, ""), nil
	}

	identity, err := e.resolver.Resolve(token)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve token: %w", err)
	}

	if counter, ok := e.cache.Get(identity); ok {
		return e.take(counter, PathCached, identity), nil
	}

	e.tracker.EnsureResolving(identity, e.source.FetchLimit)
	return e.take(e.guest, PathFallback, identity), nil
}

func (e *Engine) take(counter *WindowCounter, path Path, identity string) Decision {
	allowed := counter.Take()
	e.recorder.RecordDecision(path, allowed)
	return Decision{Allowed: allowed, Path: path, Identity: identity}
}

// Tracker exposes the resolution tracker, mainly so callers can wait for a
// pending fetch.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Stats returns a snapshot of the guest budget, cached identities and
// in-flight fetches.
func (e *Engine) Stats() Stats {
	return Stats{
		GuestLimit:     e.guest.Limit(),
		GuestRemaining: e.guest.Remaining(),
		Identities:     e.cache.Snapshot(),
		Pending:        e.tracker.Pending(),
		Queued:         e.exec.Queued(),
	}
}

// CheckHealth reports an error once the engine has been closed.
func (e *Engine) CheckHealth(ctx context.Context) error {
	if e.exec.Closed() {
		return ErrExecutorClosed
	}
	return nil
}

// Close stops background resolution. In-flight fetches see a cancelled context.
func (e *Engine) Close() {
	e.closeOnce.Do(e.exec.Close)
}
