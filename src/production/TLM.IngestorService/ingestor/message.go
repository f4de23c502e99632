package ingestor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error types reported on ingestor/errors/<deviceId>
const (
	ErrTypeInvalidTopic   = "invalid_topic"
	ErrTypeInvalidPayload = "invalid_payload"
	ErrTypeQueueFull      = "queue_full"
	ErrTypeUnauthorized   = "unauthorized"
	ErrTypeRejected       = "rejected"
	ErrTypePublishFailed  = "publish_failed"
)

var (
	errInvalidTopic   = errors.New("invalid topic")
	errInvalidPayload = errors.New("invalid payload")
)

// job is one device publish waiting to be forwarded
type job struct {
	DeviceID string
	Token    string
	Body     []byte
}

type devicePayload struct {
	AuthToken   string          `json:"auth_token"`
	VirtualPins json.RawMessage `json:"virtual_pins"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
}

type forwardBody struct {
	VirtualPins json.RawMessage `json:"virtual_pins"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
}

// deviceIDFromTopic extracts <deviceId> from devices/<deviceId>/publish
func deviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[2] != "publish" || parts[1] == "" {
		return "", fmt.Errorf("%w: %s, expected devices/<deviceId>/publish", errInvalidTopic, topic)
	}
	return parts[1], nil
}

// parseMessage turns an MQTT message into a forwardable job. The token is
// moved out of the body and sent as a header; pin validation is left to the API.
func parseMessage(topic string, payload []byte) (job, error) {
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		return job{}, err
	}

	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return job{DeviceID: deviceID}, fmt.Errorf("%w: body must be a JSON object", errInvalidPayload)
	}
	if p.AuthToken == "" {
		return job{DeviceID: deviceID}, fmt.Errorf("%w: auth_token is required", errInvalidPayload)
	}
	if pins := bytes.TrimSpace(p.VirtualPins); len(pins) == 0 || pins[0] != '{' {
		return job{DeviceID: deviceID}, fmt.Errorf("%w: virtual_pins object is required", errInvalidPayload)
	}

	body, err := json.Marshal(forwardBody{VirtualPins: p.VirtualPins, Timestamp: p.Timestamp})
	if err != nil {
		return job{DeviceID: deviceID}, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}

	return job{DeviceID: deviceID, Token: p.AuthToken, Body: body}, nil
}
