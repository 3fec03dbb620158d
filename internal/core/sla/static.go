// Package sla provides limit sources for the throttling engine.
//
// Every source answers FetchLimit(ctx, identity). The engine only calls it
// from background workers, so sources are free to be slow.
package sla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/throttlegate/throttlegate/internal/core"
)

// DefaultLatency mimics a remote SLA service round trip.
const DefaultLatency = 1500 * time.Millisecond

// Static serves limits from memory after an optional simulated delay.
type Static struct {
	mu      sync.RWMutex
	limits  map[string]int
	latency time.Duration
}

// NewStatic builds a source from identity to RPS. latency <= 0 answers
// immediately.
func NewStatic(limits map[string]int, latency time.Duration) *Static {
	s := &Static{latency: latency}
	s.Replace(limits)
	return s
}

// FetchLimit waits out the simulated latency and returns the limit.
func (s *Static) FetchLimit(ctx context.Context, identity string) (core.Limit, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return core.Limit{}, ctx.Err()
		}
	}

	s.mu.RLock()
	rps, ok := s.limits[identity]
	s.mu.RUnlock()
	if !ok {
		return core.Limit{}, fmt.Errorf("%w: %s", core.ErrLimitNotFound, identity)
	}
	return core.Limit{Identity: identity, RPS: rps}, nil
}

// Replace swaps the limit table. Entries already installed in the engine keep
// their counters.
func (s *Static) Replace(limits map[string]int) {
	next := make(map[string]int, len(limits))
	for identity, rps := range limits {
		next[identity] = rps
	}
	s.mu.Lock()
	s.limits = next
	s.mu.Unlock()
}

// Limits returns a copy of the table.
func (s *Static) Limits() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.limits))
	for identity, rps := range s.limits {
		out[identity] = rps
	}
	return out
}
