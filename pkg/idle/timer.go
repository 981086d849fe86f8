// Package idle accumulates active time from activity events, treating long
// gaps between events as idle time.
package idle

import (
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// DefaultThreshold is the gap at or above which time between two activity
// events is not counted as active.
const DefaultThreshold = time.Minute

// State is whether detection is running.
type State int

const (
	// StateStopped ignores activity.
	StateStopped State = iota
	// StateActive accumulates activity.
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "stopped"
}

// Snapshot is a copy of the timer state.
type Snapshot struct {
	State          State         `json:"-"`
	Running        bool          `json:"running"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	LastActivityAt time.Time     `json:"last_activity_at,omitempty"`
	Accumulated    time.Duration `json:"accumulated_ns"`
	Events         int           `json:"events"`
	Threshold      time.Duration `json:"threshold_ns"`
}

// Timer is the idle/stopwatch state machine. Reads are safe from any
// goroutine; mutations are expected from a single owner.
type Timer struct {
	mu             sync.RWMutex
	threshold      time.Duration
	state          State
	startedAt      time.Time
	lastActivityAt time.Time
	accumulated    time.Duration
	events         int
	now            func() time.Time
}

// Ensure Timer implements IdleDetector
var _ interfaces.IdleDetector = (*Timer)(nil)

// NewTimer creates a stopped timer. A non-positive threshold selects
// DefaultThreshold.
func NewTimer(threshold time.Duration) *Timer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Timer{
		threshold: threshold,
		now:       time.Now,
	}
}

// Threshold returns the idle gap threshold.
func (t *Timer) Threshold() time.Duration {
	return t.threshold
}

// StartDetection moves Stopped to Active and clears the previous session.
// It returns false if detection was already active.
func (t *Timer) StartDetection() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateActive {
		return false
	}
	t.state = StateActive
	t.startedAt = t.now()
	t.lastActivityAt = time.Time{}
	t.accumulated = 0
	t.events = 0
	return true
}

// StopDetection moves Active to Stopped. The accumulated time is kept until
// the next StartDetection. It returns false if detection was not active.
func (t *Timer) StopDetection() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateActive {
		return false
	}
	t.state = StateStopped
	return true
}

// OnActivity applies one activity event. While stopped it does nothing.
// A gap below the threshold since the previous event counts as active time;
// a longer gap counts as idle. Timestamps earlier than the previous event add
// nothing and never move the last activity time backwards. It returns
// whether the event was applied.
func (t *Timer) OnActivity(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateActive {
		return false
	}
	t.events++

	if t.lastActivityAt.IsZero() {
		t.lastActivityAt = at
		return true
	}
	if at.Before(t.lastActivityAt) {
		return true
	}

	if gap := at.Sub(t.lastActivityAt); gap < t.threshold {
		t.accumulated += gap
	}
	t.lastActivityAt = at
	return true
}

// Snapshot returns a copy of the current state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		State:          t.state,
		Running:        t.state == StateActive,
		StartedAt:      t.startedAt,
		LastActivityAt: t.lastActivityAt,
		Accumulated:    t.accumulated,
		Events:         t.events,
		Threshold:      t.threshold,
	}
}

// IsUserIdle returns true if no activity has been seen within threshold.
func (t *Timer) IsUserIdle(threshold time.Duration) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.lastActivityAt.IsZero() {
		return true, nil
	}
	return t.now().Sub(t.lastActivityAt) >= threshold, nil
}

// LastActivity returns the time of the last applied activity event.
func (t *Timer) LastActivity() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastActivityAt
}
