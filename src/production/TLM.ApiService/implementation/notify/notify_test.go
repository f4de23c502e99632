package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

type emitted struct {
	room  string
	event string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingBroadcaster) Emit(room, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{room, event})
}

type countingMailer struct{ count int }

func (c *countingMailer) Enqueue(event telemetry_models.AlertTriggeredEvent) bool {
	c.count++
	return true
}

type panickingBroadcaster struct{}

func (panickingBroadcaster) Emit(room, event string, data interface{}) { panic("socket gone") }

func TestPublishReadingTargetsDeviceAndOwner(t *testing.T) {
	rooms := &recordingBroadcaster{}
	d := NewDispatcher(rooms, nil, logger.NewNop())

	d.PublishReading("u1", telemetry_models.SensorDataEvent{DeviceID: "D", Pin: "V0", Value: 23.5})

	want := []emitted{{"device:D", "sensor_data"}, {"user:u1", "sensor_data"}}
	if len(rooms.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, rooms.events)
	}
	for i := range want {
		if rooms.events[i] != want[i] {
			t.Errorf("emit %d: expected %v, got %v", i, want[i], rooms.events[i])
		}
	}
}

func TestPublishAlertQueuesEmailOnlyForEmailChannel(t *testing.T) {
	rooms := &recordingBroadcaster{}
	mailer := &countingMailer{}
	d := NewDispatcher(rooms, mailer, logger.NewNop())

	d.PublishAlert(telemetry_models.AlertTriggeredEvent{DeviceID: "D", OwnerID: "u1", Channels: []string{"dashboard"}})
	d.PublishAlert(telemetry_models.AlertTriggeredEvent{DeviceID: "D", OwnerID: "u1", Channels: []string{"dashboard", "email"}})

	if mailer.count != 1 {
		t.Errorf("expected one queued email, got %d", mailer.count)
	}
	if len(rooms.events) != 4 {
		t.Errorf("expected 4 room emits, got %d", len(rooms.events))
	}
}

func TestFanoutPanicIsContained(t *testing.T) {
	d := NewDispatcher(panickingBroadcaster{}, nil, logger.NewNop())
	d.PublishReading("u1", telemetry_models.SensorDataEvent{DeviceID: "D"})
}

type fakeOwners map[string]*auth_models.User

func (f fakeOwners) GetByID(ctx context.Context, userID string) (*auth_models.User, error) {
	u, ok := f[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func TestMailerSendsOnlyToOptedInOwners(t *testing.T) {
	owners := fakeOwners{
		"u1": {UserID: "u1", Email: "a@example.com", Active: true, EmailNotifications: true},
		"u2": {UserID: "u2", Email: "b@example.com", Active: true, EmailNotifications: false},
	}
	sender := &recordingSender{}
	m := NewMailer(owners, sender, 8, 2, logger.NewNop())
	m.Start()

	m.Enqueue(telemetry_models.AlertTriggeredEvent{AlertID: "r1", AlertName: "Hot", DeviceName: "Greenhouse", OwnerID: "u1"})
	m.Enqueue(telemetry_models.AlertTriggeredEvent{AlertID: "r2", OwnerID: "u2"})
	m.Enqueue(telemetry_models.AlertTriggeredEvent{AlertID: "r3", OwnerID: "missing"})
	m.Stop()

	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "a@example.com" || sender.sent[0].Subject != "Alert: Hot triggered on Greenhouse" {
		t.Errorf("unexpected message %+v", sender.sent[0])
	}
	if m.Enqueue(telemetry_models.AlertTriggeredEvent{}) {
		t.Error("expected enqueue after stop to be rejected")
	}
}

func TestMailerSendFailureIsSwallowed(t *testing.T) {
	owners := fakeOwners{"u1": {UserID: "u1", Email: "a@example.com", Active: true, EmailNotifications: true}}
	sender := &recordingSender{err: errors.New("smtp down")}
	m := NewMailer(owners, sender, 1, 1, logger.NewNop())
	m.Start()
	m.Enqueue(telemetry_models.AlertTriggeredEvent{AlertID: "r1", OwnerID: "u1"})
	m.Stop()

	if len(sender.sent) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(sender.sent))
	}
}

func TestRenderAlertEmail(t *testing.T) {
	msg, err := RenderAlertEmail("a@example.com", telemetry_models.AlertTriggeredEvent{
		AlertName:    "Too <hot>",
		DeviceName:   "Greenhouse",
		Pin:          "V0",
		Condition:    telemetry_models.OpGreater,
		Threshold:    20,
		CurrentValue: 23.5,
		TriggeredAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg.HTML, "V0 &gt; 20") || !strings.Contains(msg.HTML, "23.5") {
		t.Errorf("body is missing condition or value")
	}
	if strings.Contains(msg.HTML, "<hot>") {
		t.Error("expected alert name to be escaped")
	}
}
