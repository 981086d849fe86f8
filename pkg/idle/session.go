package idle

import (
	"io"
	"log/slog"
	"sync"

	"github.com/Veraticus/idlewatch/pkg/bridge"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Session owns a Timer on behalf of the user interface. Every mutation runs
// on the session's own goroutine, so the timer has exactly one writer no
// matter where events and commands come from.
type Session struct {
	timer    *Timer
	recorder interfaces.SessionRecorder
	logger   *slog.Logger

	ops      chan func()
	quit     chan struct{}
	loopDone chan struct{}
	once     sync.Once

	mu        sync.Mutex
	observers []func(Snapshot)
}

// Ensure Session implements bridge.Listener
var _ bridge.Listener = (*Session)(nil)

// NewSession starts a session around timer. Completed detection sessions are
// saved through recorder when it is non-nil.
func NewSession(timer *Timer, recorder interfaces.SessionRecorder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		timer:    timer,
		recorder: recorder,
		logger:   logger.With("component", "idle"),
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Subscribe registers fn to receive a snapshot after every change. fn runs on
// the session goroutine.
func (s *Session) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns the timer state.
func (s *Session) Snapshot() Snapshot {
	return s.timer.Snapshot()
}

// Timer returns the underlying timer for read access.
func (s *Session) Timer() *Timer {
	return s.timer
}

// OnActivity queues an activity event. It implements bridge.Listener.
func (s *Session) OnActivity(event types.ActivityEvent) {
	s.submit(func() {
		if s.timer.OnActivity(event.DetectedAt) {
			s.notify()
		}
	})
}

// StartDetection begins a new detection session and waits for it to apply.
func (s *Session) StartDetection() {
	s.call(func() {
		if !s.timer.StartDetection() {
			return
		}
		s.logger.Info("detection started")
		s.notify()
	})
}

// StopDetection ends the detection session, saves it and waits for both.
func (s *Session) StopDetection() {
	s.call(s.stopLocked)
}

// Close stops detection if it is running and ends the session goroutine.
func (s *Session) Close() {
	s.call(s.stopLocked)
	s.once.Do(func() { close(s.quit) })
	<-s.loopDone
}

// stopLocked runs on the session goroutine.
func (s *Session) stopLocked() {
	if !s.timer.StopDetection() {
		return
	}
	snap := s.timer.Snapshot()
	s.logger.Info("detection stopped", "active", snap.Accumulated, "events", snap.Events)
	s.save(snap)
	s.notify()
}

func (s *Session) save(snap Snapshot) {
	if s.recorder == nil {
		return
	}
	record := types.SessionRecord{
		StartedAt: snap.StartedAt,
		StoppedAt: s.timer.now(),
		Active:    snap.Accumulated,
		Activity:  snap.Events,
	}
	if err := s.recorder.SaveSession(record); err != nil {
		s.logger.Warn("failed to save session", "err", err)
	}
}

func (s *Session) notify() {
	snap := s.timer.Snapshot()

	s.mu.Lock()
	observers := make([]func(Snapshot), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (s *Session) submit(op func()) bool {
	select {
	case s.ops <- op:
		return true
	case <-s.quit:
		return false
	}
}

// call runs op on the session goroutine and waits for it to finish.
func (s *Session) call(op func()) {
	done := make(chan struct{})
	if !s.submit(func() {
		defer close(done)
		op()
	}) {
		return
	}
	<-done
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			return
		}
	}
}
