package plugin

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHeartbeatHandler_PassesAlertsThrough(t *testing.T) {
	p := NewHeartbeatHandler()

	alert := testAlert("NodeDown")
	got, err := p.PreReceive(context.Background(), alert)
	if err != nil {
		t.Fatalf("pre-receive: %v", err)
	}
	if got != alert {
		t.Error("ordinary alert was rewritten")
	}
	if len(p.All()) != 0 {
		t.Error("ordinary alert recorded as heartbeat")
	}
}

func TestHeartbeatHandler_DivertsHeartbeats(t *testing.T) {
	p := NewHeartbeatHandler()
	ctx := context.Background()

	hb := testAlert("Heartbeat")
	hb.EventType = HeartbeatEventType
	hb.Origin = "monitoring/host01"
	hb.Tags = []string{"region:eu"}
	hb.Timeout = 120

	_, err := p.PreReceive(ctx, hb)
	var signal *HeartbeatError
	if !errors.As(err, &signal) {
		t.Fatalf("expected HeartbeatError, got %v", err)
	}
	firstID := signal.ID

	all := p.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 heartbeat, got %d", len(all))
	}
	if all[0].Origin != "monitoring/host01" || all[0].Timeout != 120 {
		t.Errorf("unexpected heartbeat record: %+v", all[0])
	}

	// The same origin keeps a stable id across receipts.
	_, err = p.PreReceive(ctx, hb)
	if !errors.As(err, &signal) {
		t.Fatalf("expected HeartbeatError, got %v", err)
	}
	if signal.ID != firstID {
		t.Errorf("heartbeat id changed across receipts: %s != %s", signal.ID, firstID)
	}
	if len(p.All()) != 1 {
		t.Errorf("repeat receipt created a second record")
	}

	other := testAlert("Heartbeat")
	other.EventType = HeartbeatEventType
	other.Origin = "monitoring/host02"
	_, err = p.PreReceive(ctx, other)
	if !errors.As(err, &signal) {
		t.Fatalf("expected HeartbeatError, got %v", err)
	}
	if signal.ID == firstID {
		t.Error("distinct origins share a heartbeat id")
	}
}

func TestHeartbeatHandler_Stale(t *testing.T) {
	p := NewHeartbeatHandler()
	ctx := context.Background()

	timed := testAlert("Heartbeat")
	timed.EventType = HeartbeatEventType
	timed.Origin = "timed"
	timed.Timeout = 60
	if _, err := p.PreReceive(ctx, timed); !errors.As(err, new(*HeartbeatError)) {
		t.Fatalf("expected HeartbeatError, got %v", err)
	}

	forever := testAlert("Heartbeat")
	forever.EventType = HeartbeatEventType
	forever.Origin = "forever"
	forever.Timeout = 0
	if _, err := p.PreReceive(ctx, forever); !errors.As(err, new(*HeartbeatError)) {
		t.Fatalf("expected HeartbeatError, got %v", err)
	}

	if stale := p.Stale(time.Now().UTC()); len(stale) != 0 {
		t.Errorf("fresh heartbeats reported stale: %v", stale)
	}

	stale := p.Stale(time.Now().UTC().Add(2 * time.Minute))
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale heartbeat, got %d", len(stale))
	}
	if stale[0].Origin != "timed" {
		t.Errorf("stale origin = %q, want timed", stale[0].Origin)
	}
}
