package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fleetgate/backend/models"
)

func TestAlertBroadcasterDeliversWrappedPayload(t *testing.T) {
	b := NewAlertBroadcaster()
	good := &fakeSubscriber{}
	bad := &fakeSubscriber{fail: true}
	b.Register(good)
	b.Register(bad)

	b.Broadcast(models.AlertPayload{
		AlertType:    "geofence_enter",
		Title:        "Vehicle Entered Zone",
		VehicleID:    "bus-1",
		GeofenceID:   7,
		GeofenceName: "Depot",
		EventType:    models.GeofenceEnter,
	})

	if good.count() != 1 {
		t.Fatalf("messages = %d, want 1", good.count())
	}

	var envelope struct {
		Type  string              `json:"type"`
		Alert models.AlertPayload `json:"alert"`
	}
	if err := json.Unmarshal(good.messages[0], &envelope); err != nil {
		t.Fatalf("invalid alert envelope: %v", err)
	}
	if envelope.Type != "alert" || envelope.Alert.GeofenceID != 7 {
		t.Errorf("envelope = %+v", envelope)
	}

	// Failed subscriber dropped and torn down
	if b.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", b.ClientCount())
	}
	if !bad.isClosed() {
		t.Error("failed subscriber was removed but not closed")
	}
}

func TestSummaryFeedTick(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	hub.ProcessTelemetry(telemetry("bus-1", 4))

	f := NewSummaryFeed(hub, time.Second)
	sub := &fakeSubscriber{}
	f.Register(sub)

	f.tick()
	f.tick()

	if sub.count() != 2 {
		t.Fatalf("messages = %d, want 2", sub.count())
	}

	var summary models.FleetSummary
	if err := json.Unmarshal(sub.messages[0], &summary); err != nil {
		t.Fatalf("invalid summary payload: %v", err)
	}
	if summary.TotalVehicles != 1 || summary.TotalPassengers != 4 {
		t.Errorf("summary = %+v", summary)
	}

	f.Unregister(sub)
	f.tick()
	if sub.count() != 2 {
		t.Error("unregistered subscriber still receiving")
	}
}

func TestSummaryFeedClosesFailedSubscriber(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	hub.ProcessTelemetry(telemetry("bus-1", 4))

	f := NewSummaryFeed(hub, time.Second)
	bad := &fakeSubscriber{fail: true}
	f.Register(bad)

	f.tick()

	if f.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", f.ClientCount())
	}
	if !bad.isClosed() {
		t.Error("failed subscriber was removed but not closed")
	}
}
