// Package buildstate holds the process-wide compile counters and
// start timestamp surfaced by the /info endpoint.
package buildstate

import (
	"sync/atomic"
	"time"
)

// State is a process-wide singleton. Every field is mutated only
// through its accessor methods; counters are monotonic.
type State struct {
	attempted int64
	succeeded int64
	failed    int64
	startedAt time.Time
}

// New returns a State stamped with the current time as the server
// start timestamp.
func New(startedAt time.Time) *State {
	return &State{startedAt: startedAt}
}

func (s *State) IncAttempted() { atomic.AddInt64(&s.attempted, 1) }
func (s *State) IncSucceeded() { atomic.AddInt64(&s.succeeded, 1) }
func (s *State) IncFailed()    { atomic.AddInt64(&s.failed, 1) }

// Snapshot is a point-in-time read of every counter plus process
// uptime, used to render the /info response.
type Snapshot struct {
	Attempted int64
	Succeeded int64
	Failed    int64
	Uptime    time.Duration
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Attempted: atomic.LoadInt64(&s.attempted),
		Succeeded: atomic.LoadInt64(&s.succeeded),
		Failed:    atomic.LoadInt64(&s.failed),
		Uptime:    time.Since(s.startedAt),
	}
}
