// Package classify maps raw sensor diagnostics and exit codes to failure reports.
package classify

import (
	"fmt"
	"strings"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// DefaultPermissionMarker is the text the macOS sensor prints when the OS has
// not granted it accessibility (input monitoring) trust.
const DefaultPermissionMarker = "This process is not trusted"

// Classifier turns diagnostic text into failure reports. The zero value uses
// DefaultPermissionMarker.
type Classifier struct {
	marker string
}

// New creates a classifier matching the given permission marker.
// An empty marker selects DefaultPermissionMarker.
func New(marker string) Classifier {
	return Classifier{marker: marker}
}

// Marker returns the permission-denial marker in use.
func (c Classifier) Marker() string {
	if c.marker == "" {
		return DefaultPermissionMarker
	}
	return c.marker
}

// Classify returns CategoryPermission when text contains the marker
// (case-sensitive) and CategoryFatal otherwise. The text is kept verbatim.
func (c Classifier) Classify(text string) types.FailureReport {
	category := types.CategoryFatal
	if strings.Contains(text, c.Marker()) {
		category = types.CategoryPermission
	}
	return types.FailureReport{
		Category:   category,
		RawMessage: text,
	}
}

// ClassifyExit reports a nonzero sensor exit code.
func (c Classifier) ClassifyExit(code int) types.FailureReport {
	exitCode := code
	return types.FailureReport{
		Category:   types.CategoryFatal,
		RawMessage: fmt.Sprintf("sensor exited unexpectedly with code %d", code),
		ExitCode:   &exitCode,
	}
}

// Transient reports a failure reading one of the sensor's streams.
func (c Classifier) Transient(err error) types.FailureReport {
	return types.FailureReport{
		Category:   types.CategoryTransient,
		RawMessage: err.Error(),
	}
}

// Classify classifies text using DefaultPermissionMarker.
func Classify(text string) types.FailureReport {
	return Classifier{}.Classify(text)
}
