package ingest

import (
	"context"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// ReadingPublisher broadcasts accepted readings
type ReadingPublisher interface {
	PublishReading(ownerID string, event telemetry_models.SensorDataEvent)
}

// RuleEvaluator runs alert rules for one accepted value
type RuleEvaluator interface {
	Evaluate(ctx context.Context, deviceID, deviceName, pin string, value float64) []telemetry_models.AlertTriggeredEvent
}

// AcceptedPin is one pin value that made it through the pipeline
type AcceptedPin struct {
	Pin   string  `json:"pin"`
	Value float64 `json:"value"`
}

// Result summarizes a publish call
type Result struct {
	Accepted  []AcceptedPin
	Triggered int
	Timestamp time.Time
}

// Service drives one publish through the pin store, the log, fanout and alerting
type Service struct {
	pins      interfaces.PinRepository
	readings  interfaces.ReadingRepository
	fanout    ReadingPublisher
	evaluator RuleEvaluator
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates the ingestion service
func NewService(pins interfaces.PinRepository, readings interfaces.ReadingRepository, fanout ReadingPublisher, evaluator RuleEvaluator, log *logger.Logger) *Service {
	return &Service{
		pins:      pins,
		readings:  readings,
		fanout:    fanout,
		evaluator: evaluator,
		logger:    log.WithComponent("ingest"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Publish processes every pin of req for an authenticated device. Pins are handled
// one after another; a failure on one pin never affects its siblings.
func (s *Service) Publish(ctx context.Context, device *telemetry_models.Device, req Request) Result {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	result := Result{Accepted: make([]AcceptedPin, 0, len(req.Pins)), Timestamp: ts}
	log := s.logger.WithDevice(device.DeviceID)

	for _, entry := range req.Pins {
		pin := telemetry_models.NormalizePinName(entry.Pin)
		if pin == "" {
			continue
		}
		value, ok := ParseValue(entry.Raw)
		if !ok {
			log.Logger.Debug().Str("pin", pin).Str("raw", string(entry.Raw)).Msg("Skipping non-numeric value")
			continue
		}

		vp, ok := s.store(ctx, log, device, pin, value, ts)
		if !ok {
			continue
		}
		result.Accepted = append(result.Accepted, AcceptedPin{Pin: pin, Value: value})

		s.fanout.PublishReading(device.OwnerID, telemetry_models.SensorDataEvent{
			DeviceID:   device.DeviceID,
			DeviceName: device.Name,
			Pin:        pin,
			Value:      value,
			Unit:       vp.Unit,
			SensorType: vp.SensorType,
			Timestamp:  ts,
		})

		result.Triggered += len(s.evaluator.Evaluate(ctx, device.DeviceID, device.Name, pin, value))
	}

	return result
}

// store provisions the pin, appends to the log, then updates the cache
func (s *Service) store(ctx context.Context, log *logger.Logger, device *telemetry_models.Device, pin string, value float64, ts time.Time) (*telemetry_models.VirtualPin, bool) {
	vp, err := s.pins.FindOrCreate(ctx, device.DeviceID, pin)
	if err != nil {
		log.Logger.Error().Err(err).Str("pin", pin).Msg("Failed to provision pin")
		return nil, false
	}

	reading := &telemetry_models.SensorReading{
		DeviceID:   device.DeviceID,
		Pin:        pin,
		Value:      value,
		SensorType: vp.SensorType,
		Unit:       vp.Unit,
		Timestamp:  ts,
	}
	if err := s.readings.Append(ctx, reading); err != nil {
		log.Logger.Error().Err(err).Str("pin", pin).Msg("Failed to append reading")
		return nil, false
	}

	updated, err := s.pins.UpsertCurrentValue(ctx, device.DeviceID, pin, value, ts)
	if err != nil {
		log.Logger.Error().Err(err).Str("pin", pin).Msg("Failed to update pin value")
		return nil, false
	}

	return updated, true
}
