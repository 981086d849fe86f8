// Package failure defines the user-visible error taxonomy of the sensor
// supervisor.
package failure

import (
	"errors"
	"fmt"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// ConfigurationError means the sensor executable is missing or unusable.
// It is fatal to the Start call that produced it and is never retried.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("activity sensor %s is not usable: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PermissionError means the OS denied the sensor input-monitoring trust.
// The sensor keeps running.
type PermissionError struct {
	Report types.FailureReport
}

func (e *PermissionError) Error() string {
	return "activity sensor lacks input monitoring permission: " + e.Report.RawMessage
}

// AbnormalExitError means the sensor exited with a nonzero code. Monitoring
// stops until the sensor is started again.
type AbnormalExitError struct {
	Code   int
	Report types.FailureReport
}

func (e *AbnormalExitError) Error() string {
	return fmt.Sprintf("activity sensor exited unexpectedly with code %d", e.Code)
}

// DiagnosticError carries advisory diagnostic text from the sensor that did
// not match the permission marker.
type DiagnosticError struct {
	Report types.FailureReport
}

func (e *DiagnosticError) Error() string {
	return "activity sensor reported: " + e.Report.RawMessage
}

// ErrAlreadyRunning is returned when a sensor is started while one is live.
var ErrAlreadyRunning = errors.New("activity sensor is already running")

// ErrLaunchCancelled is returned by a start that a stop overtook.
var ErrLaunchCancelled = errors.New("activity sensor stopped while launching")

// Kind names an error for logs and notifications.
func Kind(err error) string {
	var (
		cfgErr  *ConfigurationError
		permErr *PermissionError
		exitErr *AbnormalExitError
		diagErr *DiagnosticError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &permErr):
		return "permission"
	case errors.As(err, &exitErr):
		return "abnormal_exit"
	case errors.As(err, &diagErr):
		return "diagnostic"
	default:
		return "error"
	}
}
