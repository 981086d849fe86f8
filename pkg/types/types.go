// Package types contains shared data structures used across the application.
package types

import (
	"fmt"
	"time"
)

// ActivityEvent is a single "user input was detected" signal.
// DetectedAt is the time the sensor line arrived at the supervisor.
type ActivityEvent struct {
	DetectedAt time.Time
}

// Category classifies a sensor failure
type Category int

const (
	CategoryFatal Category = iota
	CategoryPermission
	CategoryTransient
)

func (c Category) String() string {
	switch c {
	case CategoryPermission:
		return "permission"
	case CategoryFatal:
		return "fatal"
	case CategoryTransient:
		return "transient"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// FailureReport describes a failure observed on the sensor's diagnostic
// stream or through its exit code.
type FailureReport struct {
	Category   Category
	RawMessage string
	ExitCode   *int
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "permission":
		return CategoryPermission, nil
	case "fatal":
		return CategoryFatal, nil
	case "transient":
		return CategoryTransient, nil
	default:
		return CategoryFatal, fmt.Errorf("unknown category %q", s)
	}
}

// Incident is one entry in the append-only error log.
type Incident struct {
	ID       string
	Time     time.Time
	Kind     string
	Category Category
	Message  string
	ExitCode *int
}

// SessionRecord is a completed detection session.
type SessionRecord struct {
	ID        string
	StartedAt time.Time
	StoppedAt time.Time
	Active    time.Duration
	Activity  int
}
