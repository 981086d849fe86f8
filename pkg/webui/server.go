// Package webui serves the stopwatch state and error surfaces to browser
// clients over HTTP and WebSocket, and accepts start/stop commands from them.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Veraticus/idlewatch/pkg/idle"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/notification"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 64
)

var upgrader = websocket.Upgrader{
	// The UI is served to local browsers only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// State is the combined view served at /state and pushed as "state".
type State struct {
	Timer  idle.Snapshot `json:"timer"`
	Sensor SensorState   `json:"sensor"`
}

// SensorState describes the supervised sensor.
type SensorState struct {
	Phase       string `json:"phase"`
	Pid         int    `json:"pid,omitempty"`
	LastFailure string `json:"lastFailure,omitempty"`
}

// Controller executes detection commands and reports the current state.
type Controller interface {
	StartDetection() error
	StopDetection() error
	State() State
}

// Server manages WebSocket clients.
type Server struct {
	ctrl   Controller
	logger *slog.Logger

	clients   map[*client]bool
	clientsMu sync.RWMutex

	lastEventsMu sync.Mutex
	lastEvents   int
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

var (
	_ notification.Notifier     = (*Server)(nil)
	_ interfaces.StatusReporter = (*Server)(nil)
)

// New creates a server driven by ctrl.
func New(ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		ctrl:    ctrl,
		logger:  logger.With("component", "webui"),
		clients: make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /detection/start", s.handleCommand(TypeStartDetection))
	mux.HandleFunc("POST /detection/stop", s.handleCommand(TypeStopDetection))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("web ui listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ctrl.State()); err != nil {
		s.logger.Warn("encode state", "err", err)
	}
}

func (s *Server) handleCommand(msgType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.execute(msgType); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(ErrorPayload{Message: err.Error()})
			return
		}
		s.handleState(w, r)
	}
}

func (s *Server) execute(msgType string) error {
	switch msgType {
	case TypeStartDetection:
		return s.ctrl.StartDetection()
	case TypeStopDetection:
		return s.ctrl.StopDetection()
	default:
		return errors.New("unknown command " + msgType)
	}
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "err", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	// New clients start from the current state.
	if msg, err := NewMessage(TypeState, s.ctrl.State()); err == nil {
		s.sendTo(c, msg)
	}

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", "err", err)
			}
			return
		}
		c.server.handleMessage(c, raw)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendTo queues msg for c unless c has already been removed.
func (s *Server) sendTo(c *client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if !s.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip.
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// handleMessage processes a client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := decodeClientMessage(raw)
	if err == nil {
		err = s.execute(msg.Type)
	}
	if err != nil {
		if reply, mErr := NewMessage(TypeError, ErrorPayload{Message: err.Error()}); mErr == nil {
			s.sendTo(c, reply)
		}
		return
	}
	s.BroadcastState()
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, skip.
		}
	}
}

// BroadcastState pushes the current state to every client.
func (s *Server) BroadcastState() {
	if msg, err := NewMessage(TypeState, s.ctrl.State()); err == nil {
		s.broadcast(msg)
	}
}

// UpdateTimer pushes a timer change; new activity is announced separately.
func (s *Server) UpdateTimer(snap idle.Snapshot) {
	s.lastEventsMu.Lock()
	fresh := snap.Events > s.lastEvents
	s.lastEvents = snap.Events
	s.lastEventsMu.Unlock()

	if fresh && snap.Running {
		if msg, err := NewMessage(TypeActivity, ActivityPayload{
			DetectedAt: snap.LastActivityAt,
			Events:     snap.Events,
		}); err == nil {
			s.broadcast(msg)
		}
	}
	s.BroadcastState()
}

// ReportPhase implements interfaces.StatusReporter. Phase callbacks run with
// the supervisor locked, so the state is read on another goroutine.
func (s *Server) ReportPhase(string) {
	go s.BroadcastState()
}

// Send implements notification.Notifier.
func (s *Server) Send(n notification.Notification) error {
	msg, err := NewMessage(TypeNotification, n)
	if err != nil {
		return err
	}
	s.broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
