// Package remediate opens the operating system's privacy settings so the user
// can grant the activity sensor the input-monitoring permission it needs.
package remediate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// ErrUnsupported is returned when the host OS has no settings surface to open.
var ErrUnsupported = errors.New("no permission settings surface on this platform")

// DeliveryFailure records that the settings surface could not be opened.
type DeliveryFailure struct {
	Command string
	Err     error
}

func (e *DeliveryFailure) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("permission remediation failed: %v", e.Err)
	}
	return fmt.Sprintf("permission remediation failed (%s): %v", e.Command, e.Err)
}

func (e *DeliveryFailure) Unwrap() error {
	return e.Err
}

// Remediator opens the platform's privacy settings. Failures are logged and
// recorded, never returned.
type Remediator struct {
	name        string
	args        []string
	cmdExecutor func(done func(error), name string, args ...string) error
	logger      *slog.Logger
	recorder    interfaces.Recorder

	mu       sync.Mutex
	attempts int
	failures int
}

// Ensure Remediator implements interfaces.Remediator
var _ interfaces.Remediator = (*Remediator)(nil)

// New creates a remediator for the running OS.
func New(logger *slog.Logger, recorder interfaces.Recorder) *Remediator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	name, args := settingsCommand()
	return &Remediator{
		name:        name,
		args:        args,
		cmdExecutor: startCommand,
		logger:      logger,
		recorder:    recorder,
	}
}

// startCommand launches the command without waiting for it; done runs with
// the command's result once it exits.
func startCommand(done func(error), name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		done(cmd.Wait())
	}()
	return nil
}

// Remediate opens the settings surface. It never blocks on the opened
// application and never fails the caller.
func (r *Remediator) Remediate() {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()

	if r.name == "" {
		r.fail(&DeliveryFailure{Err: ErrUnsupported})
		return
	}

	command := r.name
	r.logger.Info("opening permission settings", "command", command)
	err := r.cmdExecutor(func(err error) {
		if err != nil {
			r.fail(&DeliveryFailure{Command: command, Err: err})
		}
	}, r.name, r.args...)
	if err != nil {
		r.fail(&DeliveryFailure{Command: command, Err: err})
	}
}

// Attempts returns how many times Remediate was called.
func (r *Remediator) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Failures returns how many remediation attempts could not be delivered.
func (r *Remediator) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Remediator) fail(df *DeliveryFailure) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()

	r.logger.Warn("could not open permission settings", "err", df)
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(types.Incident{
		Time:     time.Now(),
		Kind:     "remediation",
		Category: types.CategoryTransient,
		Message:  df.Error(),
	}); err != nil {
		r.logger.Warn("could not record remediation failure", "err", err)
	}
}
