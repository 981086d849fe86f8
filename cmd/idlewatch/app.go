package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/bridge"
	"github.com/Veraticus/idlewatch/pkg/classify"
	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/failure"
	"github.com/Veraticus/idlewatch/pkg/idle"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/journal"
	"github.com/Veraticus/idlewatch/pkg/notification"
	"github.com/Veraticus/idlewatch/pkg/remediate"
	"github.com/Veraticus/idlewatch/pkg/sensor"
	"github.com/Veraticus/idlewatch/pkg/status"
	"github.com/Veraticus/idlewatch/pkg/store"
	"github.com/Veraticus/idlewatch/pkg/types"
	"github.com/Veraticus/idlewatch/pkg/webui"
)

const refreshInterval = time.Second

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config              *config.Config
	Logger              *slog.Logger
	Store               *store.SQLiteStore
	Journal             interfaces.Recorder
	NotificationManager *notification.Manager
	Remediator          *remediate.Remediator
	Bridge              *bridge.Bridge
	Session             *idle.Session
	Supervisor          *sensor.Supervisor
	StatusIndicator     *status.Indicator
	StatusReporter      *status.Reporter
	WebUI               *webui.Server
	stopChan            chan struct{}
}

// NewDependencies creates all dependencies with the given configuration
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	statusEnabled := cfg.StatusLine && isatty(os.Stderr.Fd())
	return newDependencies(cfg, os.Stderr, statusEnabled, nil)
}

// newDependencies wires the components. Alerts, logs and the status line
// all go to stderr; launcher may be nil to run real processes.
func newDependencies(cfg *config.Config, stderr io.Writer, statusEnabled bool, launcher sensor.Launcher) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		stopChan: make(chan struct{}),
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// Durable logs
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	deps.Store = db
	deps.Journal = journal.Multi{journal.NewFile(cfg.ErrorLog), db}

	// User-visible surfaces; quiet keeps journaling but shows nothing
	deps.NotificationManager = notification.NewManager(deps.Journal, deps.Logger)
	if !cfg.Quiet {
		deps.NotificationManager.AddNotifier(notification.NewTerminalNotifier(stderr))
	}
	deps.Remediator = remediate.New(deps.Logger, deps.Journal)

	// Sensor → bridge → session
	deps.Bridge = bridge.New()
	deps.Session = idle.NewSession(idle.NewTimer(cfg.IdleThreshold), db, deps.Logger)
	deps.Bridge.Register(deps.Session)

	if launcher == nil {
		launcher = sensor.ExecLauncher{UsePTY: cfg.Sensor.PTY}
	}
	deps.Supervisor = sensor.NewSupervisor(sensor.Dependencies{
		Launcher:          launcher,
		Publisher:         deps.Bridge,
		Surfacer:          deps.NotificationManager,
		Remediator:        deps.Remediator,
		Recorder:          deps.Journal,
		Classifier:        classify.New(cfg.PermissionMarker),
		Logger:            deps.Logger,
		NotifyDiagnostics: cfg.NotifyDiagnostics,
		StopTimeout:       cfg.Sensor.StopTimeout,
	})

	// Status line
	deps.StatusIndicator = status.NewIndicator(stderr, statusEnabled)
	deps.StatusReporter = status.NewReporter(deps.StatusIndicator)
	deps.Session.Subscribe(deps.StatusIndicator.Update)
	deps.Supervisor.OnPhaseChange(func(p sensor.Phase) {
		deps.StatusReporter.ReportPhase(p.String())
	})
	if statusEnabled {
		deps.StatusIndicator.StartAutoRefresh(refreshInterval, deps.stopChan)
	}

	return deps, nil
}

// attachWebUI connects a remote UI server driven by ctrl.
func (d *Dependencies) attachWebUI(ctrl webui.Controller) {
	d.WebUI = webui.New(ctrl, d.Logger)
	d.NotificationManager.AddNotifier(d.WebUI)
	d.Session.Subscribe(d.WebUI.UpdateTimer)
	d.Supervisor.OnPhaseChange(func(p sensor.Phase) {
		d.WebUI.ReportPhase(p.String())
	})
}

// Close cleans up all dependencies
func (d *Dependencies) Close() {
	if d.stopChan != nil {
		select {
		case <-d.stopChan:
			// Already closed
		default:
			close(d.stopChan)
		}
	}

	if d.Supervisor != nil {
		_ = d.Supervisor.Stop()
	}
	if d.Bridge != nil {
		d.Bridge.Close()
	}
	if d.Session != nil {
		d.Session.Close()
	}

	if d.StatusIndicator != nil {
		_ = d.StatusIndicator.Clear() // Best effort
	}

	if d.Store != nil {
		if err := d.Store.Close(); err != nil && d.Logger != nil {
			d.Logger.Warn("closing store", "err", err)
		}
	}
}

// Application represents the main application
type Application struct {
	deps *Dependencies

	// Serializes operator commands from stdin and the web UI.
	mu sync.Mutex
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	app := &Application{deps: deps}
	if deps.Config.Listen != "" {
		deps.attachWebUI(app)
	}
	return app
}

var _ webui.Controller = (*Application)(nil)

// StartDetection launches the sensor and begins a detection session. A
// sensor that is already running is reused.
func (a *Application) StartDetection() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.sensorPath()
	if err != nil {
		return err
	}

	if err := a.deps.Supervisor.Start(path); err != nil && !errors.Is(err, failure.ErrAlreadyRunning) {
		return err
	}
	a.deps.Session.StartDetection()
	return nil
}

// StopDetection stops the sensor and ends the detection session.
func (a *Application) StopDetection() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.deps.Supervisor.Stop()
	a.deps.Session.StopDetection()
	return err
}

// Restart stops and relaunches the sensor. The detection session keeps
// running.
func (a *Application) Restart() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.sensorPath()
	if err != nil {
		return err
	}
	return a.deps.Supervisor.Restart(path)
}

// State returns the combined timer and sensor view.
func (a *Application) State() webui.State {
	snap := a.deps.Supervisor.State()
	state := webui.State{
		Timer: a.deps.Session.Snapshot(),
		Sensor: webui.SensorState{
			Phase: snap.Phase.String(),
			Pid:   snap.Pid,
		},
	}
	if snap.LastFailure != nil {
		state.Sensor.LastFailure = snap.LastFailure.RawMessage
	}
	return state
}

// sensorPath resolves the sensor for this OS. A missing entry is a
// configuration error like a missing file.
func (a *Application) sensorPath() (string, error) {
	path, err := a.deps.Config.HostSensorPath()
	if err == nil {
		return path, nil
	}

	cfgErr := &failure.ConfigurationError{Path: "(unset)", Err: err}
	if recErr := a.deps.Journal.Record(types.Incident{
		Time:     time.Now(),
		Kind:     failure.Kind(cfgErr),
		Category: types.CategoryFatal,
		Message:  cfgErr.Error(),
	}); recErr != nil {
		a.deps.Logger.Warn("recording incident", "err", recErr)
	}
	a.deps.NotificationManager.Surface(cfgErr)
	return "", cfgErr
}

// Run serves the optional web UI and operator commands read from in until
// ctx is cancelled or a quit command arrives, then stops detection.
func (a *Application) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		srvErr error
	)
	if a.deps.WebUI != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.deps.WebUI.ListenAndServe(ctx, a.deps.Config.Listen); err != nil {
				srvErr = fmt.Errorf("web ui: %w", err)
				cancel()
			}
		}()
	}

	if a.deps.Config.AutoStart {
		if err := a.StartDetection(); err != nil {
			a.deps.Logger.Warn("auto start failed", "err", err)
		}
	}

	if in != nil {
		go a.readCommands(in, out, cancel)
	}

	<-ctx.Done()

	err := a.StopDetection()
	wg.Wait()
	if srvErr != nil {
		return srvErr
	}
	return err
}

// readCommands executes one command per line. End of input leaves the
// application running until it is signalled.
func (a *Application) readCommands(in io.Reader, out io.Writer, quit context.CancelFunc) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "quit" || cmd == "exit" {
			quit()
			return
		}
		if err := a.execute(cmd, out); err != nil {
			a.deps.Logger.Warn("command failed", "command", cmd, "err", err)
		}
	}
}

func (a *Application) execute(cmd string, out io.Writer) error {
	switch cmd {
	case "":
		return nil
	case "start":
		return a.StartDetection()
	case "stop":
		return a.StopDetection()
	case "restart":
		return a.Restart()
	case "status":
		_, err := fmt.Fprintln(out, formatState(a.State()))
		return err
	default:
		_, err := fmt.Fprintf(out, "unknown command %q (start, stop, restart, status, quit)\n", cmd)
		return err
	}
}

func formatState(s webui.State) string {
	line := fmt.Sprintf("detection=%s active=%s events=%d sensor=%s",
		s.Timer.State, status.FormatDuration(s.Timer.Accumulated), s.Timer.Events, s.Sensor.Phase)
	if s.Sensor.Pid != 0 {
		line += fmt.Sprintf(" pid=%d", s.Sensor.Pid)
	}
	if s.Sensor.LastFailure != "" {
		line += fmt.Sprintf(" last_failure=%q", s.Sensor.LastFailure)
	}
	return line
}
