package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

const alertRuleColumns = `id, owner_id, device_id, pin, name, condition, threshold, channels, cooldown_minutes, message, is_active, last_triggered_at, trigger_count, trigger_history, created_at`

type PostgresAlertRuleRepository struct {
	db *sql.DB
}

func NewPostgresAlertRuleRepository(db *sql.DB) *PostgresAlertRuleRepository {
	return &PostgresAlertRuleRepository{db: db}
}

// Create alert rule
func (r *PostgresAlertRuleRepository) Create(ctx context.Context, rule *telemetry_models.AlertRule) (*telemetry_models.AlertRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now().UTC()

	historyJSON, err := marshalHistory(rule.History)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO alert_rules (` + alertRuleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query, rule.ID, rule.OwnerID, rule.DeviceID, rule.Pin, rule.Name,
		string(rule.Condition), rule.Threshold, pq.Array(rule.Channels), rule.CooldownMinutes, rule.Message,
		rule.IsActive, rule.LastTriggeredAt, rule.TriggerCount, historyJSON, rule.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert alert rule: %w", err)
	}

	return rule, nil
}

func (r *PostgresAlertRuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.AlertRule, error) {
	return r.list(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListActive returns the rules evaluated for one pin
func (r *PostgresAlertRuleRepository) ListActive(ctx context.Context, deviceID, pin string) ([]*telemetry_models.AlertRule, error) {
	return r.list(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE device_id = $1 AND pin = $2 AND is_active = true`, deviceID, pin)
}

// RecordTrigger is a conditional update keyed on the previously observed last_triggered_at
func (r *PostgresAlertRuleRepository) RecordTrigger(ctx context.Context, rule *telemetry_models.AlertRule, previous *time.Time) error {
	historyJSON, err := marshalHistory(rule.History)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_rules
		SET last_triggered_at = $1, trigger_count = $2, trigger_history = $3
		WHERE id = $4 AND last_triggered_at IS NOT DISTINCT FROM $5::timestamptz
	`

	result, err := r.db.ExecContext(ctx, query, rule.LastTriggeredAt, rule.TriggerCount, historyJSON, rule.ID, previous)
	if err != nil {
		return fmt.Errorf("record trigger for rule %s: %w", rule.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return interfaces.ErrStaleTrigger
	}
	return nil
}

func (r *PostgresAlertRuleRepository) list(ctx context.Context, query string, args ...interface{}) ([]*telemetry_models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*telemetry_models.AlertRule, 0)
	for rows.Next() {
		var rule telemetry_models.AlertRule
		var condition string
		var lastTriggered sql.NullTime
		var historyJSON []byte

		if err := rows.Scan(&rule.ID, &rule.OwnerID, &rule.DeviceID, &rule.Pin, &rule.Name, &condition,
			&rule.Threshold, pq.Array(&rule.Channels), &rule.CooldownMinutes, &rule.Message, &rule.IsActive,
			&lastTriggered, &rule.TriggerCount, &historyJSON, &rule.CreatedAt); err != nil {
			return nil, err
		}

		rule.Condition = telemetry_models.Operator(condition)
		rule.LastTriggeredAt = nullTimePtr(lastTriggered)
		if len(historyJSON) > 0 {
			if err := json.Unmarshal(historyJSON, &rule.History); err != nil {
				return nil, fmt.Errorf("failed to unmarshal trigger history: %w", err)
			}
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}

func marshalHistory(history []telemetry_models.TriggerEntry) ([]byte, error) {
	if history == nil {
		history = []telemetry_models.TriggerEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger history: %w", err)
	}
	return historyJSON, nil
}
