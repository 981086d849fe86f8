// Package journal keeps the plain-text error log and fans incidents out to
// every durable sink.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// File appends one line per incident to a log file:
//
//	2024-05-01T08:00:00Z: abnormal_exit sensor exited unexpectedly with code 1
type File struct {
	mu   sync.Mutex
	path string
}

// Ensure File implements Recorder
var _ interfaces.Recorder = (*File)(nil)

// NewFile returns a journal writing to path. The file and its directory are
// created on first use.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the log file location.
func (f *File) Path() string {
	return f.path
}

// Record appends incident to the log.
func (f *File) Record(incident types.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	// #nosec G304 - the path comes from configuration
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}

	_, writeErr := file.WriteString(FormatLine(incident))
	closeErr := file.Close()
	if writeErr != nil {
		return fmt.Errorf("write error log: %w", writeErr)
	}
	return closeErr
}

// FormatLine renders one incident as a log line, newline included. Newlines
// inside the message are flattened so every incident stays on one line.
func FormatLine(incident types.Incident) string {
	at := incident.Time
	if at.IsZero() {
		at = time.Now()
	}
	message := strings.ReplaceAll(strings.TrimRight(incident.Message, "\r\n"), "\n", " | ")
	return fmt.Sprintf("%s: %s %s\n", at.UTC().Format(time.RFC3339), incident.Kind, message)
}

// Multi records every incident to all of its recorders.
type Multi []interfaces.Recorder

// Record writes to every recorder, even when some fail.
func (m Multi) Record(incident types.Incident) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(incident); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
