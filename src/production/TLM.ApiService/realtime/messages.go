package realtime

import (
	"encoding/json"
	"time"
)

// Envelope is the frame exchanged in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
}

type connectedPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriptionPayload struct {
	DeviceID  string    `json:"deviceId"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type pongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
