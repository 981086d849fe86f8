// Package sensor supervises the out-of-process activity sensor: it launches
// it, turns its output into activity events and failure reports, and tears it
// down.
package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/classify"
	"github.com/Veraticus/idlewatch/pkg/failure"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

const (
	// DefaultStopTimeout bounds each escalation step of Stop.
	DefaultStopTimeout = 3 * time.Second

	maxLineSize = 1024 * 1024
)

// Dependencies holds the collaborators of a Supervisor. Only Launcher is
// required.
type Dependencies struct {
	Launcher   Launcher
	Publisher  interfaces.ActivityPublisher
	Surfacer   interfaces.Surfacer
	Remediator interfaces.Remediator
	Recorder   interfaces.Recorder
	Classifier classify.Classifier
	Logger     *slog.Logger

	// NotifyDiagnostics surfaces non-permission diagnostic lines as advisory
	// errors. They are always recorded.
	NotifyDiagnostics bool
	StopTimeout       time.Duration

	// Now stamps activity events; defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	Phase       Phase
	Pid         int
	Path        string
	LastFailure *types.FailureReport
}

// Supervisor owns at most one live sensor process.
type Supervisor struct {
	deps   Dependencies
	logger *slog.Logger

	mu          sync.Mutex
	phase       Phase
	current     *run
	lastFailure *types.FailureReport
	lastEventAt time.Time
	observers   []func(Phase)

	// launchDone is closed when the launch in progress has settled.
	// stopRequested is set by a Stop that arrives during that launch.
	launchDone    chan struct{}
	stopRequested bool
}

// run is one launched process and the state of its readers.
type run struct {
	proc        Process
	path        string
	stopping    bool
	terminating bool
	done        chan struct{}
}

// NewSupervisor creates a supervisor in PhaseIdle.
func NewSupervisor(deps Dependencies) *Supervisor {
	if deps.Launcher == nil {
		deps.Launcher = ExecLauncher{}
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		deps:   deps,
		logger: logger.With("component", "sensor"),
	}
}

// OnPhaseChange registers fn to be called on every transition. Callbacks run
// synchronously in transition order and must not call back into the
// Supervisor.
func (s *Supervisor) OnPhaseChange(fn func(Phase)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current snapshot.
func (s *Supervisor) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Phase: s.phase}
	if s.current != nil {
		snap.Pid = s.current.proc.Pid()
		snap.Path = s.current.path
	}
	if s.lastFailure != nil {
		report := *s.lastFailure
		snap.LastFailure = &report
	}
	return snap
}

// Done returns a channel closed when the current process has terminated. With
// no process it returns a closed channel.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.current.done
}

// Start launches the sensor at path. A missing or unusable executable yields
// a *failure.ConfigurationError, which is also recorded and surfaced; the
// supervisor then stays idle.
func (s *Supervisor) Start(path string) error {
	s.mu.Lock()
	if s.phase != PhaseIdle && s.phase != PhaseRestarting {
		s.mu.Unlock()
		return failure.ErrAlreadyRunning
	}
	// Coming from Restarting, Restart has already opened the launch window.
	if s.phase == PhaseIdle {
		s.launchDone = make(chan struct{})
		s.stopRequested = false
	}
	launchDone := s.launchDone
	defer close(launchDone)

	if s.stopRequested {
		s.stopRequested = false
		s.setPhaseLocked(PhaseIdle)
		s.mu.Unlock()
		return failure.ErrLaunchCancelled
	}

	if err := checkExecutable(path); err != nil {
		s.setPhaseLocked(PhaseIdle)
		s.mu.Unlock()
		return s.configurationFailure(path, err)
	}

	s.setPhaseLocked(PhaseLaunching)
	s.mu.Unlock()

	s.logger.Info("launching sensor", "path", path)
	proc, err := s.deps.Launcher.Launch(path)

	s.mu.Lock()
	if err != nil {
		s.stopRequested = false
		s.setPhaseLocked(PhaseIdle)
		s.mu.Unlock()
		return s.configurationFailure(path, err)
	}

	r := &run{proc: proc, path: path, done: make(chan struct{})}
	s.current = r
	if s.stopRequested {
		// The waiting Stop terminates the process; nothing it reports counts.
		s.stopRequested = false
		r.stopping = true
		s.mu.Unlock()
		s.logger.Info("sensor stopped during launch", "pid", proc.Pid())
		go s.supervise(r)
		return failure.ErrLaunchCancelled
	}
	s.setPhaseLocked(PhaseRunning)
	s.mu.Unlock()

	s.logger.Info("sensor running", "pid", proc.Pid())
	go s.supervise(r)
	return nil
}

// Stop terminates the live sensor and returns once it has reached the
// terminal transition. A process that ignores the termination request is
// killed after the stop timeout. Stop is idempotent and safe to call while
// the process exits on its own; nothing is published or surfaced once it
// returns. A Stop during launch waits for the launch to settle and then
// terminates whatever it produced.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if (s.phase == PhaseLaunching || s.phase == PhaseRestarting) && s.current == nil {
		s.stopRequested = true
		launchDone := s.launchDone
		s.mu.Unlock()
		<-launchDone
		s.mu.Lock()
	}
	r := s.current
	if r == nil {
		s.mu.Unlock()
		return nil
	}
	first := !r.terminating
	r.terminating = true
	r.stopping = true
	s.mu.Unlock()

	if first {
		s.logger.Info("stopping sensor", "pid", r.proc.Pid())
		if err := r.proc.Terminate(); err != nil {
			s.logger.Debug("terminate failed", "err", err)
		}
	}

	timeout := s.deps.StopTimeout
	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
	}

	s.logger.Warn("sensor ignored termination, killing", "pid", r.proc.Pid())
	if err := r.proc.Kill(); err != nil {
		s.logger.Debug("kill failed", "err", err)
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
	}

	// Something else still holds the streams open.
	if err := r.proc.Close(); err != nil {
		s.logger.Debug("closing sensor streams failed", "err", err)
	}
	<-r.done
	return nil
}

// Restart stops any live sensor and launches the one at path. It is only
// ever an operator action.
func (s *Supervisor) Restart(path string) error {
	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop sensor: %w", err)
	}

	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return failure.ErrAlreadyRunning
	}
	s.setPhaseLocked(PhaseRestarting)
	s.launchDone = make(chan struct{})
	s.stopRequested = false
	s.mu.Unlock()

	return s.Start(path)
}

// supervise reads both streams until they end, then reaps the process.
func (s *Supervisor) supervise(r *run) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLines(r, "primary", r.proc.Primary(), s.handleActivity)
	}()
	go func() {
		defer wg.Done()
		s.readLines(r, "diagnostic", r.proc.Diagnostic(), s.handleDiagnostic)
	}()
	wg.Wait()

	code, err := r.proc.Wait()
	_ = r.proc.Close()
	s.handleExit(r, code, err)
}

func (s *Supervisor) readLines(r *run, stream string, src io.Reader, handle func(*run, string)) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		handle(r, scanner.Text())
	}

	err := scanner.Err()
	if err == nil {
		return
	}

	s.mu.Lock()
	stopping := r.stopping
	s.mu.Unlock()
	if !stopping {
		report := s.deps.Classifier.Transient(fmt.Errorf("reading %s stream: %w", stream, err))
		s.logger.Warn("sensor stream failed", "stream", stream, "err", err)
		s.record("stream", report)
	}

	// Keep the pipe empty so the sensor never blocks writing to it.
	_, _ = io.Copy(io.Discard, src)
}

func (s *Supervisor) handleActivity(r *run, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	s.mu.Lock()
	if s.current != r || r.stopping {
		s.mu.Unlock()
		return
	}
	at := s.deps.Now()
	if at.Before(s.lastEventAt) {
		at = s.lastEventAt
	}
	s.lastEventAt = at
	s.mu.Unlock()

	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(types.ActivityEvent{DetectedAt: at})
	}
}

func (s *Supervisor) handleDiagnostic(r *run, line string) {
	text := strings.TrimSpace(line)
	if text == "" {
		return
	}
	report := s.deps.Classifier.Classify(text)

	s.mu.Lock()
	if s.current != r {
		s.mu.Unlock()
		return
	}
	s.lastFailure = &report
	if report.Category == types.CategoryPermission && s.phase == PhaseRunning {
		s.setPhaseLocked(PhaseDegraded)
	}
	stopping := r.stopping
	s.mu.Unlock()

	s.record("diagnostic", report)
	if stopping {
		return
	}

	if report.Category == types.CategoryPermission {
		s.logger.Warn("sensor lacks input monitoring permission", "message", text)
		if s.deps.Remediator != nil {
			s.deps.Remediator.Remediate()
		}
		s.surface(&failure.PermissionError{Report: report})
		return
	}

	s.logger.Warn("sensor diagnostic", "message", text)
	if s.deps.NotifyDiagnostics {
		s.surface(&failure.DiagnosticError{Report: report})
	}
}

func (s *Supervisor) handleExit(r *run, code int, waitErr error) {
	s.mu.Lock()
	if s.current != r {
		s.mu.Unlock()
		close(r.done)
		return
	}
	graceful := r.stopping || (waitErr == nil && code == 0)
	s.setPhaseLocked(PhaseTerminated)
	s.mu.Unlock()

	if graceful {
		s.logger.Info("sensor exited", "code", code)
	} else {
		report := s.deps.Classifier.ClassifyExit(code)
		if waitErr != nil {
			report.RawMessage = fmt.Sprintf("%s: %v", report.RawMessage, waitErr)
		}
		s.logger.Error("sensor exited unexpectedly", "code", code, "err", waitErr)

		s.mu.Lock()
		s.lastFailure = &report
		s.mu.Unlock()

		s.record("abnormal_exit", report)
		s.surface(&failure.AbnormalExitError{Code: code, Report: report})
	}

	s.mu.Lock()
	s.current = nil
	s.setPhaseLocked(PhaseIdle)
	s.mu.Unlock()
	close(r.done)
}

func (s *Supervisor) configurationFailure(path string, err error) error {
	cfgErr := &failure.ConfigurationError{Path: path, Err: err}
	s.logger.Error("sensor not usable", "path", path, "err", err)
	s.record("configuration", types.FailureReport{
		Category:   types.CategoryFatal,
		RawMessage: cfgErr.Error(),
	})
	s.surface(cfgErr)
	return cfgErr
}

func (s *Supervisor) record(kind string, report types.FailureReport) {
	if s.deps.Recorder == nil {
		return
	}
	incident := types.Incident{
		Time:     s.deps.Now(),
		Kind:     kind,
		Category: report.Category,
		Message:  report.RawMessage,
		ExitCode: report.ExitCode,
	}
	if err := s.deps.Recorder.Record(incident); err != nil {
		s.logger.Warn("failed to record incident", "kind", kind, "err", err)
	}
}

func (s *Supervisor) surface(err error) {
	if s.deps.Surfacer != nil {
		s.deps.Surfacer.Surface(err)
	}
}

// setPhaseLocked must be called with s.mu held.
func (s *Supervisor) setPhaseLocked(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Debug("phase change", "from", s.phase, "to", p)
	s.phase = p
	for _, fn := range s.observers {
		fn(p)
	}
}

func checkExecutable(path string) error {
	if path == "" {
		return errors.New("no sensor path configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if !info.Mode().IsRegular() {
		return errors.New("is not a regular file")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return errors.New("is not executable")
	}
	return nil
}
