package telemetry_models

import (
	"strings"
	"time"
)

// Defaults applied to pins created by ingestion
const (
	DefaultSensorType = "custom"
	DefaultPinColor   = "#00d4ff"
	DefaultPinMin     = 0
	DefaultPinMax     = 100
)

// VirtualPin caches the latest value of one named channel on a device
type VirtualPin struct {
	ID           string     `json:"id" db:"id"`
	DeviceID     string     `json:"deviceId" db:"device_id"`
	PinName      string     `json:"pin" db:"pin_name"`
	Label        string     `json:"label" db:"label"`
	SensorType   string     `json:"sensorType" db:"sensor_type"`
	Unit         string     `json:"unit" db:"unit"`
	MinValue     float64    `json:"minValue" db:"min_value"`
	MaxValue     float64    `json:"maxValue" db:"max_value"`
	Color        string     `json:"color" db:"color"`
	CurrentValue *float64   `json:"value" db:"current_value"`
	LastUpdated  *time.Time `json:"lastUpdated" db:"last_updated"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// NormalizePinName canonicalizes a pin name: surrounding space removed, upper-cased
func NormalizePinName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewAutoProvisionedPin builds the record created the first time a device reports pin
func NewAutoProvisionedPin(deviceID, pin string) *VirtualPin {
	pin = NormalizePinName(pin)
	return &VirtualPin{
		DeviceID:   deviceID,
		PinName:    pin,
		Label:      pin,
		SensorType: DefaultSensorType,
		Unit:       "",
		MinValue:   DefaultPinMin,
		MaxValue:   DefaultPinMax,
		Color:      DefaultPinColor,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
}

// LatestPinValue is one entry of the latest-values read path
type LatestPinValue struct {
	Pin         string     `json:"pin"`
	Label       string     `json:"label"`
	Value       *float64   `json:"value"`
	Unit        string     `json:"unit"`
	SensorType  string     `json:"sensorType"`
	MinValue    float64    `json:"minValue"`
	MaxValue    float64    `json:"maxValue"`
	Color       string     `json:"color"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

// Latest projects the pin onto the latest-values shape
func (p *VirtualPin) Latest() LatestPinValue {
	return LatestPinValue{
		Pin:         p.PinName,
		Label:       p.Label,
		Value:       p.CurrentValue,
		Unit:        p.Unit,
		SensorType:  p.SensorType,
		MinValue:    p.MinValue,
		MaxValue:    p.MaxValue,
		Color:       p.Color,
		LastUpdated: p.LastUpdated,
	}
}
