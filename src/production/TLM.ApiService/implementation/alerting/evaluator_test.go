package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingPublisher struct {
	events []telemetry_models.AlertTriggeredEvent
}

func (r *recordingPublisher) PublishAlert(event telemetry_models.AlertTriggeredEvent) {
	r.events = append(r.events, event)
}

type failingRules struct {
	*implementation.MemoryAlertRuleRepository
	failID string
}

func (f *failingRules) RecordTrigger(ctx context.Context, rule *telemetry_models.AlertRule, previous *time.Time) error {
	if rule.ID == f.failID {
		return errors.New("write failed")
	}
	return f.MemoryAlertRuleRepository.RecordTrigger(ctx, rule, previous)
}

func newRule(t *testing.T, repo *implementation.MemoryAlertRuleRepository, id string, op telemetry_models.Operator, threshold float64) {
	t.Helper()
	_, err := repo.Create(context.Background(), &telemetry_models.AlertRule{
		ID:              id,
		OwnerID:         "u1",
		DeviceID:        "D",
		Pin:             "V0",
		Name:            "rule " + id,
		Condition:       op,
		Threshold:       threshold,
		Channels:        []string{telemetry_models.ChannelDashboard},
		CooldownMinutes: 5,
		IsActive:        true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func triggerCount(t *testing.T, repo *implementation.MemoryAlertRuleRepository, id string) int {
	t.Helper()
	rules, _ := repo.ListActive(context.Background(), "D", "V0")
	for _, r := range rules {
		if r.ID == id {
			return r.TriggerCount
		}
	}
	t.Fatalf("rule %s not found", id)
	return 0
}

func TestCooldownSuppressesSecondTriggerWithinWindow(t *testing.T) {
	repo := implementation.NewMemoryAlertRuleRepository()
	newRule(t, repo, "r1", telemetry_models.OpGreater, 20)
	pub := &recordingPublisher{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	ev := NewEvaluator(repo, pub, logger.NewNop()).WithClock(clock.Now)

	ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 25)
	clock.Advance(2 * time.Minute)
	ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 26)

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 trigger event, got %d", len(pub.events))
	}
	if got := triggerCount(t, repo, "r1"); got != 1 {
		t.Errorf("expected trigger count 1, got %d", got)
	}
}

func TestCooldownAllowsTriggerAfterWindow(t *testing.T) {
	repo := implementation.NewMemoryAlertRuleRepository()
	newRule(t, repo, "r1", telemetry_models.OpGreater, 20)
	pub := &recordingPublisher{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	ev := NewEvaluator(repo, pub, logger.NewNop()).WithClock(clock.Now)

	ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 25)
	clock.Advance(6 * time.Minute)
	ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 26)

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 trigger events, got %d", len(pub.events))
	}
	if got := triggerCount(t, repo, "r1"); got != 2 {
		t.Errorf("expected trigger count 2, got %d", got)
	}
}

func TestFalseConditionDoesNotTrigger(t *testing.T) {
	repo := implementation.NewMemoryAlertRuleRepository()
	newRule(t, repo, "r1", telemetry_models.OpGreater, 30)
	pub := &recordingPublisher{}
	ev := NewEvaluator(repo, pub, logger.NewNop())

	if got := ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 30); len(got) != 0 {
		t.Fatalf("expected no triggers for 30 > 30, got %d", len(got))
	}
	if len(pub.events) != 0 {
		t.Error("nothing should be published")
	}
}

func TestTriggerEventPayload(t *testing.T) {
	repo := implementation.NewMemoryAlertRuleRepository()
	newRule(t, repo, "r1", telemetry_models.OpGreater, 20)
	pub := &recordingPublisher{}
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	ev := NewEvaluator(repo, pub, logger.NewNop()).WithClock(func() time.Time { return at })

	got := ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 23.5)
	if len(got) != 1 {
		t.Fatalf("expected one trigger, got %d", len(got))
	}
	e := got[0]
	if e.AlertID != "r1" || e.DeviceName != "Greenhouse" || e.CurrentValue != 23.5 || !e.TriggeredAt.Equal(at) {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Message != "V0 > 20 (current: 23.5)" {
		t.Errorf("unexpected message %q", e.Message)
	}
	if e.OwnerID != "u1" {
		t.Errorf("expected routing owner u1, got %q", e.OwnerID)
	}
}

func TestPersistenceFailureIsolatesRule(t *testing.T) {
	mem := implementation.NewMemoryAlertRuleRepository()
	newRule(t, mem, "bad", telemetry_models.OpGreater, 0)
	newRule(t, mem, "good", telemetry_models.OpGreater, 0)
	pub := &recordingPublisher{}
	ev := NewEvaluator(&failingRules{MemoryAlertRuleRepository: mem, failID: "bad"}, pub, logger.NewNop())

	got := ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 1)
	if len(got) != 1 || got[0].AlertID != "good" {
		t.Fatalf("expected only the healthy rule to trigger, got %+v", got)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected one published event, got %d", len(pub.events))
	}
}

func TestStaleTriggerIsSuppressed(t *testing.T) {
	repo := implementation.NewMemoryAlertRuleRepository()
	newRule(t, repo, "r1", telemetry_models.OpGreater, 0)
	stale, _ := repo.ListActive(context.Background(), "D", "V0")

	pub := &recordingPublisher{}
	ev := NewEvaluator(repo, pub, logger.NewNop())
	ev.Evaluate(context.Background(), "D", "Greenhouse", "V0", 1)

	// A second evaluator that loaded the rule before the first trigger landed
	previous := stale[0].LastTriggeredAt
	stale[0].RecordTrigger(time.Now(), 2)
	if err := repo.RecordTrigger(context.Background(), stale[0], previous); err == nil {
		t.Fatal("expected the stale write to be rejected")
	}
	if got := triggerCount(t, repo, "r1"); got != 1 {
		t.Errorf("expected trigger count 1, got %d", got)
	}
}
