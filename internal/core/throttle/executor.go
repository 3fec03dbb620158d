package throttle

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

var (
	// ErrExecutorSaturated is returned when the task queue is full.
	ErrExecutorSaturated = errors.New("executor queue is full")

	// ErrDispatchRateExceeded is returned when the dispatch limiter has no tokens left.
	ErrDispatchRateExceeded = errors.New("executor dispatch rate exceeded")

	// ErrExecutorClosed is returned for submissions after Close.
	ErrExecutorClosed = errors.New("executor is closed")
)

// Task is a unit of background work. The context is cancelled on Close.
type Task func(ctx context.Context)

// ExecutorConfig sizes the worker pool.
type ExecutorConfig struct {
	Workers   int
	QueueSize int

	// DispatchRate caps accepted submissions per second. Zero means unlimited.
	DispatchRate  float64
	DispatchBurst int
}

// Executor runs tasks on a fixed set of workers fed by a bounded queue.
// Submission never blocks: a full queue or an exhausted dispatch budget
// rejects the task and the caller decides what to do.
type Executor struct {
	tasks   chan Task
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup
}

// NewExecutor starts the workers.
func NewExecutor(cfg ExecutorConfig) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.DispatchRate > 0 {
		burst := cfg.DispatchBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		tasks:   make(chan Task, queueSize),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		e.wg.Go(e.work)
	}
	return e
}

func (e *Executor) work() {
	for task := range e.tasks {
		task(e.ctx)
	}
}

// TrySubmit queues task without blocking.
func (e *Executor) TrySubmit(task Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}
	if !e.limiter.Allow() {
		return ErrDispatchRateExceeded
	}

	select {
	case e.tasks <- task:
		return nil
	default:
		return ErrExecutorSaturated
	}
}

// Queued returns the number of tasks waiting for a worker.
func (e *Executor) Queued() int {
	return len(e.tasks)
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close rejects new work, cancels the task context and waits for the workers
// to drain the queue.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
