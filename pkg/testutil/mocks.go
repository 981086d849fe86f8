// Package testutil provides thread-safe mocks shared by package tests.
package testutil

import (
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/notification"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// MockNotifier is a thread-safe mock implementation of notification.Notifier for testing
type MockNotifier struct {
	mu            sync.Mutex
	notifications []notification.Notification
	attempts      []notification.Notification // Track all send attempts
	sendErr       error
	sendDelay     time.Duration
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		notifications: []notification.Notification{},
		attempts:      []notification.Notification{},
	}
}

// Send implements the Notifier interface
func (m *MockNotifier) Send(n notification.Notification) error {
	m.mu.Lock()
	delay := m.sendDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, n)

	if m.sendErr != nil {
		return m.sendErr
	}

	m.notifications = append(m.notifications, n)
	return nil
}

// GetNotifications returns a copy of successfully sent notifications
func (m *MockNotifier) GetNotifications() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]notification.Notification, len(m.notifications))
	copy(result, m.notifications)
	return result
}

// CountKind returns how many sent notifications have the given kind.
func (m *MockNotifier) CountKind(kind notification.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, notif := range m.notifications {
		if notif.Kind == kind {
			n++
		}
	}
	return n
}

// GetAttempts returns a copy of all attempted sends (including failures)
func (m *MockNotifier) GetAttempts() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]notification.Notification, len(m.attempts))
	copy(result, m.attempts)
	return result
}

// SetError sets the error to return on Send calls
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetDelay sets a delay before each Send call
func (m *MockNotifier) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = delay
}

// Clear resets the mock state
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = []notification.Notification{}
	m.attempts = []notification.Notification{}
	m.sendErr = nil
	m.sendDelay = 0
}

// MockRecorder is a mock implementation of interfaces.Recorder
type MockRecorder struct {
	mu        sync.Mutex
	incidents []types.Incident
	err       error
}

// NewMockRecorder creates a new mock recorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{}
}

// Record implements interfaces.Recorder
func (m *MockRecorder) Record(incident types.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.incidents = append(m.incidents, incident)
	return nil
}

// GetIncidents returns a copy of recorded incidents
func (m *MockRecorder) GetIncidents() []types.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]types.Incident, len(m.incidents))
	copy(result, m.incidents)
	return result
}

// SetError makes Record fail
func (m *MockRecorder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MockSurfacer is a mock implementation of interfaces.Surfacer
type MockSurfacer struct {
	mu     sync.Mutex
	errors []error
}

// NewMockSurfacer creates a new mock surfacer
func NewMockSurfacer() *MockSurfacer {
	return &MockSurfacer{}
}

// Surface implements interfaces.Surfacer
func (m *MockSurfacer) Surface(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

// GetErrors returns a copy of surfaced errors
func (m *MockSurfacer) GetErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]error, len(m.errors))
	copy(result, m.errors)
	return result
}

// Count returns how many surfaced errors satisfy match.
func (m *MockSurfacer) Count(match func(error) bool) int {
	n := 0
	for _, err := range m.GetErrors() {
		if match(err) {
			n++
		}
	}
	return n
}

// MockRemediator is a mock implementation of interfaces.Remediator
type MockRemediator struct {
	mu    sync.Mutex
	calls int
}

// NewMockRemediator creates a new mock remediator
func NewMockRemediator() *MockRemediator {
	return &MockRemediator{}
}

// Remediate implements interfaces.Remediator
func (m *MockRemediator) Remediate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

// Calls returns how many times Remediate was called
func (m *MockRemediator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPublisher collects published activity events
type MockPublisher struct {
	mu     sync.Mutex
	events []types.ActivityEvent
	notify chan struct{}
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{notify: make(chan struct{}, 1)}
}

// Publish implements interfaces.ActivityPublisher
func (m *MockPublisher) Publish(event types.ActivityEvent) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// GetEvents returns a copy of published events
func (m *MockPublisher) GetEvents() []types.ActivityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]types.ActivityEvent, len(m.events))
	copy(result, m.events)
	return result
}

// WaitForEvents blocks until at least n events were published or the
// timeout elapses.
func (m *MockPublisher) WaitForEvents(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		if len(m.GetEvents()) >= n {
			return nil
		}
		select {
		case <-m.notify:
		case <-deadline:
			return errors.New("timed out waiting for events")
		}
	}
}

// MockSessionRecorder is a mock implementation of interfaces.SessionRecorder
type MockSessionRecorder struct {
	mu       sync.Mutex
	sessions []types.SessionRecord
	err      error
}

// NewMockSessionRecorder creates a new mock session recorder
func NewMockSessionRecorder() *MockSessionRecorder {
	return &MockSessionRecorder{}
}

// SaveSession implements interfaces.SessionRecorder
func (m *MockSessionRecorder) SaveSession(record types.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sessions = append(m.sessions, record)
	return nil
}

// GetSessions returns a copy of saved sessions
func (m *MockSessionRecorder) GetSessions() []types.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]types.SessionRecord, len(m.sessions))
	copy(result, m.sessions)
	return result
}

// SetError makes SaveSession fail
func (m *MockSessionRecorder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
