package gateway

import (
	"encoding/json"
	"time"
)

// FrameTypeEvent is the only frame type the event stream sends.
const FrameTypeEvent = "event"

// EventHello is the first frame sent on every /ws connection.
const EventHello = "hello"

// Frame is the envelope for every WebSocket message.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Seq     int64           `json:"seq,omitempty"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello describes the server to a newly connected client.
type Hello struct {
	Version string   `json:"version"`
	Commit  string   `json:"commit,omitempty"`
	ConnID  string   `json:"connId"`
	Thread  string   `json:"thread,omitempty"`
	Events  []string `json:"events"`
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	f := Frame{
		Type:  FrameTypeEvent,
		Event: event,
		Seq:   seq,
		TS:    time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
