package synccontrol

import (
	"sync"
	"time"
)

// State of the most recent sync operation
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Snapshot is the status shown to the operator
type Snapshot struct {
	State     State  `json:"state"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message,omitempty"`
	Added     int    `json:"added"`
	At        int64  `json:"at,omitempty"`
}

// Status tracks idle -> in_progress -> success|error -> idle. Finished states
// fall back to idle after resetAfter unless a newer operation has begun.
type Status struct {
	mu         sync.Mutex
	cur        Snapshot
	gen        uint64
	resetAfter time.Duration
	now        func() time.Time
}

// NewStatus creates an idle Status. resetAfter <= 0 keeps finished states.
func NewStatus(resetAfter time.Duration) *Status {
	return &Status{
		cur:        Snapshot{State: StateIdle},
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// Begin marks op as in progress
func (s *Status) Begin(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cur = Snapshot{State: StateInProgress, Operation: op, At: s.now().UnixMilli()}
}

// Finish records the outcome of op and schedules the reset to idle
func (s *Status) Finish(op string, added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	gen := s.gen

	snap := Snapshot{State: StateSuccess, Operation: op, Added: added, At: s.now().UnixMilli()}
	if err != nil {
		snap.State = StateError
		snap.Message = err.Error()
	}
	s.cur = snap

	if s.resetAfter <= 0 {
		return
	}
	time.AfterFunc(s.resetAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen {
			s.cur = Snapshot{State: StateIdle}
		}
	})
}

// Snapshot returns the current status
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
