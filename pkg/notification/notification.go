// Package notification provides the user-visible error surfaces.
package notification

import (
	"errors"
	"time"

	"github.com/Veraticus/idlewatch/pkg/failure"
)

// Kind classifies a notification.
type Kind string

// Notification kinds
const (
	KindConfiguration Kind = "configuration"
	KindPermission    Kind = "permission"
	KindAbnormalExit  Kind = "abnormal_exit"
	KindDiagnostic    Kind = "diagnostic"
	KindError         Kind = "error"
)

// Notification represents a notification to be shown.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
}

// Notifier shows notifications.
type Notifier interface {
	Send(notification Notification) error
}

// FromError builds the notification for a surfaced error.
func FromError(err error, now time.Time) Notification {
	n := Notification{
		Message: err.Error(),
		Time:    now,
		Kind:    Kind(failure.Kind(err)),
	}

	var (
		cfgErr  *failure.ConfigurationError
		permErr *failure.PermissionError
		exitErr *failure.AbnormalExitError
		diagErr *failure.DiagnosticError
	)
	switch {
	case errors.As(err, &cfgErr):
		n.Title = "Activity Sensor Missing"
		n.Message = "The activity sensor at " + cfgErr.Path + " could not be started: " + cfgErr.Err.Error()
	case errors.As(err, &permErr):
		n.Title = "Permission Required"
		n.Message = "The activity sensor is not allowed to monitor input. " +
			"Grant it accessibility access in the privacy settings, then restart detection."
	case errors.As(err, &exitErr):
		n.Title = "Activity Sensor Stopped"
	case errors.As(err, &diagErr):
		n.Title = "Mouse Tracker Error"
		n.Message = diagErr.Report.RawMessage
	default:
		n.Title = "idlewatch Error"
	}
	return n
}
