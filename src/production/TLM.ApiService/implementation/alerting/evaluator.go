package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// AlertPublisher receives every trigger the evaluator records
type AlertPublisher interface {
	PublishAlert(event telemetry_models.AlertTriggeredEvent)
}

// Evaluator tests readings against active alert rules with cooldown debouncing
type Evaluator struct {
	rules  interfaces.AlertRuleRepository
	fanout AlertPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewEvaluator creates an evaluator
func NewEvaluator(rules interfaces.AlertRuleRepository, fanout AlertPublisher, log *logger.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		fanout: fanout,
		logger: log.WithComponent("alerting"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate runs every active rule for (deviceID, pin) against value and returns
// the triggers that were recorded. A failing rule is logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context, deviceID, deviceName, pin string, value float64) []telemetry_models.AlertTriggeredEvent {
	rules, err := e.rules.ListActive(ctx, deviceID, pin)
	if err != nil {
		e.logger.Logger.Error().Err(err).Str("device_id", deviceID).Str("pin", pin).Msg("Failed to load alert rules")
		return nil
	}

	triggered := make([]telemetry_models.AlertTriggeredEvent, 0)
	for _, rule := range rules {
		event, fired, err := e.evaluateRule(ctx, rule, deviceName, value)
		if err != nil {
			e.logger.Logger.Error().Err(err).Str("alert_id", rule.ID).Str("device_id", deviceID).Str("pin", pin).Msg("Alert evaluation failed")
			continue
		}
		if !fired {
			continue
		}

		triggered = append(triggered, event)
		e.publish(event)
		e.logger.Logger.Info().
			Str("alert_id", rule.ID).
			Str("alert_name", rule.Name).
			Str("pin", pin).
			Float64("value", value).
			Str("condition", string(rule.Condition)).
			Float64("threshold", rule.Threshold).
			Msg("Alert triggered")
	}

	return triggered
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *telemetry_models.AlertRule, deviceName string, value float64) (event telemetry_models.AlertTriggeredEvent, fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating rule: %v", r)
		}
	}()

	if !rule.Condition.Compare(value, rule.Threshold) {
		return event, false, nil
	}

	now := e.now()
	if rule.InCooldown(now) {
		return event, false, nil
	}

	previous := rule.LastTriggeredAt
	rule.RecordTrigger(now, value)

	if err := e.rules.RecordTrigger(ctx, rule, previous); err != nil {
		if errors.Is(err, interfaces.ErrStaleTrigger) {
			// A concurrent reading already fired this rule inside the window
			return event, false, nil
		}
		return event, false, fmt.Errorf("persist trigger: %w", err)
	}

	return telemetry_models.AlertTriggeredEvent{
		AlertID:      rule.ID,
		AlertName:    rule.Name,
		DeviceID:     rule.DeviceID,
		DeviceName:   deviceName,
		Pin:          rule.Pin,
		Condition:    rule.Condition,
		Threshold:    rule.Threshold,
		CurrentValue: value,
		Message:      rule.RenderMessage(value),
		TriggeredAt:  now,
		OwnerID:      rule.OwnerID,
		Channels:     rule.Channels,
	}, true, nil
}

func (e *Evaluator) publish(event telemetry_models.AlertTriggeredEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Logger.Error().Interface("panic", r).Str("alert_id", event.AlertID).Msg("Failed to publish alert")
		}
	}()
	e.fanout.PublishAlert(event)
}
