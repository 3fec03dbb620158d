package throttle

import "time"

// Path names the counter an admission decision was charged against.
type Path string

const (
	PathGuest    Path = "guest"
	PathCached   Path = "cached"
	PathFallback Path = "fallback"
)

// Outcome describes how a limit resolution ended.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

// Recorder receives engine events. Implementations must be safe for
// concurrent use and must not block.
type Recorder interface {
	RecordDecision(path Path, allowed bool)
	RecordResolution(outcome Outcome, elapsed time.Duration)
	SetCachedIdentities(count int)
	SetPendingResolutions(count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(Path, bool) {}
func (nopRecorder) RecordResolution(Outcome, time.Duration) {}
func (nopRecorder) SetCachedIdentities(int) {}
func (nopRecorder) SetPendingResolutions(int) {}
