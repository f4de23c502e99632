package telemetry_models

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MaxTriggerHistory bounds AlertRule.History; the oldest entries are evicted first
const MaxTriggerHistory = 50

// DefaultCooldownMinutes is used when a rule is stored without a cooldown
const DefaultCooldownMinutes = 5

// Notification channels a rule may enable
const (
	ChannelDashboard = "dashboard"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
)

// Operator is the comparison applied between a reading and a rule's threshold
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// ParseOperator accepts the canonical forms plus "=", "≥", "≤" and "≠"
func ParseOperator(s string) (Operator, error) {
	switch s {
	case ">", "<", ">=", "<=", "==", "!=":
		return Operator(s), nil
	case "=":
		return OpEqual, nil
	case "≥":
		return OpGreaterEqual, nil
	case "≤":
		return OpLessEqual, nil
	case "≠":
		return OpNotEqual, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Compare evaluates value <op> threshold. Equality is exact; nearly equal floats do not match.
func (op Operator) Compare(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

// TriggerEntry is one element of a rule's trigger history
type TriggerEntry struct {
	TriggeredAt time.Time `json:"triggeredAt"`
	Value       float64   `json:"value"`
	Notified    bool      `json:"notified"`
}

// AlertRule is a user-owned threshold condition on one device pin
type AlertRule struct {
	ID              string         `json:"id" db:"id"`
	OwnerID         string         `json:"ownerId" db:"owner_id"`
	DeviceID        string         `json:"deviceId" db:"device_id"`
	Pin             string         `json:"pin" db:"pin"`
	Name            string         `json:"name" db:"name"`
	Condition       Operator       `json:"condition" db:"condition"`
	Threshold       float64        `json:"threshold" db:"threshold"`
	Channels        []string       `json:"notificationType" db:"channels"`
	CooldownMinutes int            `json:"cooldownMinutes" db:"cooldown_minutes"`
	Message         string         `json:"message,omitempty" db:"message"`
	IsActive        bool           `json:"isActive" db:"is_active"`
	LastTriggeredAt *time.Time     `json:"lastTriggered,omitempty" db:"last_triggered_at"`
	TriggerCount    int            `json:"triggerCount" db:"trigger_count"`
	History         []TriggerEntry `json:"triggerHistory" db:"trigger_history"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
}

// Cooldown returns the rule's debounce interval, never less than one minute
func (r *AlertRule) Cooldown() time.Duration {
	minutes := r.CooldownMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// InCooldown reports whether a trigger at now would be suppressed
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < r.Cooldown()
}

// HasChannel reports whether the rule notifies over channel
func (r *AlertRule) HasChannel(channel string) bool {
	return slices.Contains(r.Channels, channel)
}

// RecordTrigger applies trigger bookkeeping in place
func (r *AlertRule) RecordTrigger(now time.Time, value float64) {
	at := now
	r.LastTriggeredAt = &at
	r.TriggerCount++
	r.History = append(r.History, TriggerEntry{TriggeredAt: now, Value: value, Notified: true})
	if over := len(r.History) - MaxTriggerHistory; over > 0 {
		r.History = slices.Clone(r.History[over:])
	}
}

// RenderMessage returns the custom message, or "<pin> <op> <threshold> (current: <value>)"
func (r *AlertRule) RenderMessage(value float64) string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("%s %s %s (current: %s)", r.Pin, r.Condition, FormatNumber(r.Threshold), FormatNumber(value))
}

// FormatNumber prints a float in its shortest exact form: plain decimal, or
// exponent notation ("1e+21", "1e-7") at 1e21 and above or below 1e-6.
func FormatNumber(v float64) string {
	abs := math.Abs(v)
	if abs < 1e21 && (abs == 0 || abs >= 1e-6) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	s := strconv.FormatFloat(v, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits
}
