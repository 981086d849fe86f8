package webui

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeActivity     = "activity"
	TypeState        = "state"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Client → Server message types.
const (
	TypeStartDetection = "start_detection"
	TypeStopDetection  = "stop_detection"
)

// ActivityPayload announces that new activity was applied to the timer.
type ActivityPayload struct {
	DetectedAt time.Time `json:"detectedAt"`
	Events     int       `json:"events"`
}

// ErrorPayload answers a client message that could not be handled.
type ErrorPayload struct {
	Message string `json:"message"`
}

// decodeClientMessage parses and validates a client message.
func decodeClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch msg.Type {
	case TypeStartDetection, TypeStopDetection:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
