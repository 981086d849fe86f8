// Package interfaces defines the core interfaces used throughout the application.
package interfaces

import (
	"time"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// IdleDetector detects user activity/inactivity.
type IdleDetector interface {
	IsUserIdle(threshold time.Duration) (bool, error)
	LastActivity() time.Time
}

// ActivityPublisher forwards activity events out of the supervisor.
// Publish must not block.
type ActivityPublisher interface {
	Publish(event types.ActivityEvent)
}

// Surfacer shows an error to the user.
type Surfacer interface {
	Surface(err error)
}

// Remediator triggers the OS permission remediation action. It never fails
// the caller.
type Remediator interface {
	Remediate()
}

// Recorder durably appends incidents.
type Recorder interface {
	Record(incident types.Incident) error
}

// SessionRecorder persists completed detection sessions.
type SessionRecorder interface {
	SaveSession(record types.SessionRecord) error
}

// StatusReporter receives sensor lifecycle changes for display.
type StatusReporter interface {
	ReportPhase(phase string)
}
