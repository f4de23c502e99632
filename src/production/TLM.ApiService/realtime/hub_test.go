package realtime

import (
	"context"
	"encoding/json"
	"testing"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

type fakeOwners map[string]string // deviceID -> ownerID

func (f fakeOwners) OwnsDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	return f[deviceID] == userID, nil
}

func newTestClient(h *Hub, userID string) *Client {
	c := NewClient(h, nil, userID, 16)
	c.start()
	return c
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func events(envs []Envelope) []string {
	names := make([]string, len(envs))
	for i, e := range envs {
		names[i] = e.Event
	}
	return names
}

func subscribe(c *Client, deviceID string) {
	c.handleMessage([]byte(`{"event":"subscribe_device","data":{"deviceId":"` + deviceID + `"}}`))
}

func TestAuthenticatedConnectJoinsUserRoom(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	c := newTestClient(h, "u1")

	got := drain(c)
	if len(got) != 1 || got[0].Event != telemetry_models.EventConnected {
		t.Fatalf("expected connected event, got %v", events(got))
	}
	if h.RoomSize(telemetry_models.UserRoom("u1")) != 1 {
		t.Error("expected client in user room")
	}
}

func TestAnonymousConnectIsSilent(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	c := newTestClient(h, "")
	if got := drain(c); len(got) != 0 {
		t.Fatalf("expected no events for anonymous client, got %v", events(got))
	}
}

func TestDeviceRoomsAreIsolated(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	a := newTestClient(h, "")
	b := newTestClient(h, "")
	subscribe(a, "A")
	subscribe(b, "B")
	drain(a)
	drain(b)

	h.Emit(telemetry_models.DeviceRoom("B"), telemetry_models.EventSensorData, telemetry_models.SensorDataEvent{DeviceID: "B", Pin: "V0", Value: 1})

	if got := drain(a); len(got) != 0 {
		t.Fatalf("subscriber of A received %v", events(got))
	}
	got := drain(b)
	if len(got) != 1 || got[0].Event != telemetry_models.EventSensorData {
		t.Fatalf("subscriber of B expected sensor_data, got %v", events(got))
	}
}

func TestSubscribeChecksOwnershipForAuthenticatedClients(t *testing.T) {
	h := NewHub(fakeOwners{"D1": "u1"}, logger.NewNop())
	owner := newTestClient(h, "u1")
	intruder := newTestClient(h, "u2")
	drain(owner)
	drain(intruder)

	subscribe(owner, "D1")
	subscribe(intruder, "D1")

	if got := drain(owner); len(got) != 1 || got[0].Event != telemetry_models.EventSubscribed {
		t.Fatalf("owner expected subscribed, got %v", events(got))
	}
	got := drain(intruder)
	if len(got) != 1 || got[0].Event != telemetry_models.EventError {
		t.Fatalf("intruder expected error, got %v", events(got))
	}
	var payload errorPayload
	_ = json.Unmarshal(got[0].Data, &payload)
	if payload.Message != "Device not found or access denied" {
		t.Errorf("unexpected error message %q", payload.Message)
	}
	if h.RoomSize(telemetry_models.DeviceRoom("D1")) != 1 {
		t.Errorf("expected only the owner in the room")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	c := newTestClient(h, "")
	subscribe(c, "D")

	unsub := []byte(`{"event":"unsubscribe_device","data":{"deviceId":"D"}}`)
	c.handleMessage(unsub)
	c.handleMessage(unsub)
	c.handleMessage([]byte(`{"event":"unsubscribe_device","data":{"deviceId":"never-joined"}}`))

	for _, env := range drain(c) {
		if env.Event == telemetry_models.EventError {
			t.Fatalf("unsubscribe produced an error event")
		}
	}
	if h.RoomSize(telemetry_models.DeviceRoom("D")) != 0 {
		t.Error("expected room to be empty")
	}
}

func TestDisconnectRemovesAllMemberships(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	c := newTestClient(h, "u1")
	subscribe(c, "D1")
	subscribe(c, "D2")

	h.Unregister(c)
	h.Unregister(c)

	for _, room := range []string{"device:D1", "device:D2", "user:u1"} {
		if h.RoomSize(room) != 0 {
			t.Errorf("expected %s to be empty after disconnect", room)
		}
	}
	// Emitting after disconnect must not panic on the closed channel
	h.Emit("device:D1", telemetry_models.EventSensorData, map[string]string{})
}

func TestPingAndUnknownEvent(t *testing.T) {
	h := NewHub(nil, logger.NewNop())
	c := newTestClient(h, "")

	c.handleMessage([]byte(`{"event":"ping"}`))
	c.handleMessage([]byte(`{"event":"dance"}`))
	c.handleMessage([]byte(`not json`))

	got := events(drain(c))
	want := []string{telemetry_models.EventPong, telemetry_models.EventError, telemetry_models.EventError}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
