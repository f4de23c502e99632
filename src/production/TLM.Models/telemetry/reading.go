package telemetry_models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SensorReading is one immutable observation appended to the time-series log
type SensorReading struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DeviceID   string             `bson:"device_id" json:"deviceId"`
	Pin        string             `bson:"pin" json:"pin"`
	Value      float64            `bson:"value" json:"value"`
	SensorType string             `bson:"sensor_type" json:"sensorType"`
	Unit       string             `bson:"unit" json:"unit"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

// ReadingQuery filters the time-series log. Zero From/To mean unbounded.
type ReadingQuery struct {
	DeviceID string
	Pin      string
	From     time.Time
	To       time.Time
	Limit    int
}

// Matches reports whether r satisfies q, ignoring Limit
func (q ReadingQuery) Matches(r *SensorReading) bool {
	if r.DeviceID != q.DeviceID {
		return false
	}
	if q.Pin != "" && r.Pin != q.Pin {
		return false
	}
	if !q.From.IsZero() && r.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.Timestamp.After(q.To) {
		return false
	}
	return true
}

// ClampLimit bounds a requested result size to [1, max], substituting def for non-positive values
func ClampLimit(requested, def, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > max {
		return max
	}
	return requested
}
