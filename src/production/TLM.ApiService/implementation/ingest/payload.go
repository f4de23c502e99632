package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPayload marks a publish body that cannot be processed at all
var ErrInvalidPayload = errors.New("invalid payload")

// PinValue is one raw entry of the virtual_pins mapping
type PinValue struct {
	Pin string
	Raw json.RawMessage
}

// Request is a decoded publish call
type Request struct {
	Pins []PinValue

	// Zero means "use receipt time"
	Timestamp time.Time
}

type publishBody struct {
	VirtualPins json.RawMessage `json:"virtual_pins"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

// ParseRequest decodes a publish body. Only the shape is validated here;
// individual values are checked later and skipped when unusable.
func ParseRequest(body []byte) (Request, error) {
	var req Request

	var pb publishBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return req, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}

	trimmed := bytes.TrimSpace(pb.VirtualPins)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return req, fmt.Errorf("%w: virtual_pins object is required", ErrInvalidPayload)
	}

	var pins map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &pins); err != nil {
		return req, fmt.Errorf("%w: virtual_pins object is required", ErrInvalidPayload)
	}

	names := make([]string, 0, len(pins))
	for name := range pins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Pins = append(req.Pins, PinValue{Pin: name, Raw: pins[name]})
	}

	ts, err := parseTimestamp(pb.Timestamp)
	if err != nil {
		return req, err
	}
	req.Timestamp = ts

	return req, nil
}

// Accepted string layouts, tried in order. Values without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

// parseTimestamp accepts an ISO-8601 string or epoch milliseconds
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: timestamp must be ISO-8601", ErrInvalidPayload)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: timestamp must be ISO-8601", ErrInvalidPayload)
}

// ParseValue reads a JSON number or numeric string. Anything else is reported as unusable.
func ParseValue(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	} else if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return 0, false
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
