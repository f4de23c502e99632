package telemetry_models

import (
	"encoding/json"
	"time"
)

// Real-time event names
const (
	EventConnected      = "connected"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventError          = "error"
	EventPong           = "pong"
	EventSensorData     = "sensor_data"
	EventAlertTriggered = "alert_triggered"
	EventLayoutUpdated  = "layout_updated"
)

// Client message names
const (
	MessageSubscribeDevice   = "subscribe_device"
	MessageUnsubscribeDevice = "unsubscribe_device"
	MessagePing              = "ping"
)

// DeviceRoom is the broadcast group for a device
func DeviceRoom(deviceID string) string {
	return "device:" + deviceID
}

// UserRoom is the personal broadcast group for a user
func UserRoom(userID string) string {
	return "user:" + userID
}

// SensorDataEvent is broadcast for every accepted reading
type SensorDataEvent struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Pin        string    `json:"pin"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	SensorType string    `json:"sensorType"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertTriggeredEvent is produced by the evaluator when a rule fires
type AlertTriggeredEvent struct {
	AlertID      string    `json:"alertId"`
	AlertName    string    `json:"alertName"`
	DeviceID     string    `json:"deviceId"`
	DeviceName   string    `json:"deviceName"`
	Pin          string    `json:"pin"`
	Condition    Operator  `json:"condition"`
	Threshold    float64   `json:"threshold"`
	CurrentValue float64   `json:"currentValue"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggeredAt"`

	// Routing, not serialized
	OwnerID  string   `json:"-"`
	Channels []string `json:"-"`
}

// LayoutUpdatedEvent is emitted when a dashboard layout is saved
type LayoutUpdatedEvent struct {
	DeviceID        string          `json:"deviceId"`
	DashboardLayout json.RawMessage `json:"dashboardLayout"`
}
