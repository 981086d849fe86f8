package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/idlewatch/pkg/idle"
	"github.com/Veraticus/idlewatch/pkg/notification"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
}

func (f *fakeController) StartDetection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.running = true
	return nil
}

func (f *fakeController) StopDetection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeController) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	phase := "idle"
	if f.running {
		phase = "running"
	}
	return State{
		Timer:  idle.Snapshot{Running: f.running, Threshold: time.Minute},
		Sensor: SensorState{Phase: phase},
	}
}

func (f *fakeController) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func dial(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "websocket dial failed")
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readType reads messages until one of the wanted type arrives.
func readType(t *testing.T, ws *websocket.Conn, msgType string) *Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type == msgType {
			return &msg
		}
	}
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestGetState(t *testing.T) {
	srv := New(&fakeController{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var state State
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	assert.Equal(t, "idle", state.Sensor.Phase)
	assert.False(t, state.Timer.Running)
	assert.Equal(t, time.Minute, state.Timer.Threshold)
}

func TestRESTCommands(t *testing.T) {
	ctrl := &fakeController{}
	handler := New(ctrl, nil).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/detection/start", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var state State
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	assert.True(t, state.Timer.Running)

	ctrl.startErr = errors.New("sensor missing")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/detection/start", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "sensor missing")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/detection/stop", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWebSocketInitialStateAndCommands(t *testing.T) {
	ctrl := &fakeController{}
	srv := New(ctrl, nil)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, httpSrv)
	readType(t, ws, TypeState)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeStartDetection}))
	msg := readType(t, ws, TypeState)
	var state State
	require.NoError(t, json.Unmarshal(msg.Payload, &state))
	assert.True(t, state.Timer.Running)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeStopDetection}))
	readType(t, ws, TypeState)

	starts, stops := ctrl.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	srv := New(&fakeController{}, nil)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, httpSrv)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reboot"}`)))

	msg := readType(t, ws, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "reboot")
}

func TestBroadcasts(t *testing.T) {
	srv := New(&fakeController{}, nil)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, httpSrv)
	readType(t, ws, TypeState)
	waitClients(t, srv, 1)

	require.NoError(t, srv.Send(notification.Notification{
		Title: "Permission Required",
		Kind:  notification.KindPermission,
	}))
	msg := readType(t, ws, TypeNotification)
	var n notification.Notification
	require.NoError(t, json.Unmarshal(msg.Payload, &n))
	assert.Equal(t, notification.KindPermission, n.Kind)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.UpdateTimer(idle.Snapshot{Running: true, Events: 1, LastActivityAt: at})
	msg = readType(t, ws, TypeActivity)
	var activity ActivityPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &activity))
	assert.Equal(t, 1, activity.Events)
	assert.True(t, activity.DetectedAt.Equal(at))
}

func TestClientRemovedOnDisconnect(t *testing.T) {
	srv := New(&fakeController{}, nil)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, httpSrv)
	waitClients(t, srv, 1)

	_ = ws.Close()
	waitClients(t, srv, 0)
}

func TestErrorReplyAfterClientRemoved(t *testing.T) {
	tests := []struct {
		name   string
		remove func(*Server, *client)
		raw    string
	}{
		{
			name:   "server shutdown",
			remove: func(s *Server, _ *client) { s.closeClients() },
			raw:    `not json`,
		},
		{
			name:   "client disconnect",
			remove: (*Server).removeClient,
			raw:    `{"type":"start_detection"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&fakeController{startErr: errors.New("no sensor")}, nil)
			c := &client{send: make(chan []byte, sendBuffer), server: srv}
			srv.clientsMu.Lock()
			srv.clients[c] = true
			srv.clientsMu.Unlock()

			tt.remove(srv, c)
			assert.NotPanics(t, func() { srv.handleMessage(c, []byte(tt.raw)) })

			_, open := <-c.send
			assert.False(t, open, "nothing may be queued after removal")
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := New(&fakeController{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/state")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
