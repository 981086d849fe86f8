package notification

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Manager turns surfaced errors into notifications and delivers each one to
// every registered notifier exactly once.
type Manager struct {
	recorder interfaces.Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	notifiers []Notifier
}

// Ensure Manager implements Surfacer
var _ interfaces.Surfacer = (*Manager)(nil)

// NewManager creates a manager. Delivery failures are recorded through
// recorder when it is non-nil.
func NewManager(recorder interfaces.Recorder, logger *slog.Logger, notifiers ...Notifier) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		recorder:  recorder,
		logger:    logger.With("component", "notification"),
		now:       time.Now,
		notifiers: notifiers,
	}
}

// AddNotifier registers another delivery target.
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Surface shows err to the user.
func (m *Manager) Surface(err error) {
	if err == nil {
		return
	}
	n := FromError(err, m.now())
	m.logger.Info("surfacing error", "kind", n.Kind, "title", n.Title, "err", err)
	if sendErr := m.Send(n); sendErr != nil {
		m.logger.Warn("notification not delivered", "kind", n.Kind, "err", sendErr)
	}
}

// Send delivers n to every notifier. A failing notifier does not stop the
// others; the failures are recorded and returned joined.
func (m *Manager) Send(n Notification) error {
	m.mu.Lock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.Unlock()

	var errs []error
	for _, notifier := range notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
			m.recordDeliveryFailure(n, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) recordDeliveryFailure(n Notification, err error) {
	if m.recorder == nil {
		return
	}
	if recErr := m.recorder.Record(types.Incident{
		Time:     m.now(),
		Kind:     "delivery",
		Category: types.CategoryTransient,
		Message:  string(n.Kind) + " notification: " + err.Error(),
	}); recErr != nil {
		m.logger.Warn("failed to record delivery failure", "err", recErr)
	}
}
