package telemetry_models

import (
	"testing"
	"time"
)

func TestOperatorTruthTableAtThreshold(t *testing.T) {
	cases := []struct {
		op   Operator
		want bool
	}{
		{OpGreater, false},
		{OpLess, false},
		{OpGreaterEqual, true},
		{OpLessEqual, true},
		{OpEqual, true},
		{OpNotEqual, false},
	}
	for _, tc := range cases {
		if got := tc.op.Compare(30, 30); got != tc.want {
			t.Errorf("30 %s 30: expected %v, got %v", tc.op, tc.want, got)
		}
	}
}

func TestOperatorEqualityIsExact(t *testing.T) {
	v := 0.1 + 0.2
	if OpEqual.Compare(v, 0.3) {
		t.Error("expected exact comparison to reject 0.1+0.2 == 0.3")
	}
	if !OpNotEqual.Compare(v, 0.3) {
		t.Error("expected exact comparison to accept 0.1+0.2 != 0.3")
	}
}

func TestParseOperator(t *testing.T) {
	aliases := map[string]Operator{"=": OpEqual, "≥": OpGreaterEqual, "≤": OpLessEqual, "≠": OpNotEqual, ">": OpGreater}
	for in, want := range aliases {
		got, err := ParseOperator(in)
		if err != nil || got != want {
			t.Errorf("ParseOperator(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOperator("=>"); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestRecordTriggerCapsHistory(t *testing.T) {
	rule := &AlertRule{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxTriggerHistory+1; i++ {
		rule.RecordTrigger(base.Add(time.Duration(i)*time.Minute), float64(i))
	}

	if len(rule.History) != MaxTriggerHistory {
		t.Fatalf("expected %d history entries, got %d", MaxTriggerHistory, len(rule.History))
	}
	if rule.History[0].Value != 1 {
		t.Errorf("expected oldest entry to be evicted, first value is %v", rule.History[0].Value)
	}
	if last := rule.History[len(rule.History)-1]; last.Value != float64(MaxTriggerHistory) {
		t.Errorf("expected newest value %d, got %v", MaxTriggerHistory, last.Value)
	}
	if rule.TriggerCount != MaxTriggerHistory+1 {
		t.Errorf("expected trigger count %d, got %d", MaxTriggerHistory+1, rule.TriggerCount)
	}
}

func TestInCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rule := &AlertRule{CooldownMinutes: 5}

	if rule.InCooldown(now) {
		t.Fatal("rule that never triggered must not be in cooldown")
	}

	rule.RecordTrigger(now, 1)
	if !rule.InCooldown(now.Add(2 * time.Minute)) {
		t.Error("expected cooldown 2 minutes after trigger")
	}
	if rule.InCooldown(now.Add(5 * time.Minute)) {
		t.Error("expected cooldown to expire at exactly 5 minutes")
	}
}

func TestCooldownFloorIsOneMinute(t *testing.T) {
	rule := &AlertRule{CooldownMinutes: 0}
	if rule.Cooldown() != time.Minute {
		t.Errorf("expected 1m floor, got %v", rule.Cooldown())
	}
}

func TestRenderMessage(t *testing.T) {
	rule := &AlertRule{Pin: "V0", Condition: OpGreater, Threshold: 20}
	if got := rule.RenderMessage(23.5); got != "V0 > 20 (current: 23.5)" {
		t.Errorf("unexpected generated message %q", got)
	}

	rule.Message = "Too hot"
	if got := rule.RenderMessage(23.5); got != "Too hot" {
		t.Errorf("expected custom message, got %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		0:        "0",
		23.5:     "23.5",
		-4:       "-4",
		1e20:     "100000000000000000000",
		1e21:     "1e+21",
		-2.5e22:  "-2.5e+22",
		0.000001: "0.000001",
		1e-7:     "1e-7",
		1.25e-10: "1.25e-10",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}
