package interfaces

import (
	"context"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

type AlertRuleRepository interface {
	Create(ctx context.Context, rule *telemetry_models.AlertRule) (*telemetry_models.AlertRule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.AlertRule, error)

	// ListActive returns active rules bound to (deviceID, pin)
	ListActive(ctx context.Context, deviceID, pin string) ([]*telemetry_models.AlertRule, error)

	// RecordTrigger persists the rule's trigger bookkeeping only if its stored
	// last-triggered time still equals previous; otherwise ErrStaleTrigger.
	RecordTrigger(ctx context.Context, rule *telemetry_models.AlertRule, previous *time.Time) error
}
