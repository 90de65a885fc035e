package services

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/fleetgate/backend/models"
)

type fakeTransport struct {
	subject string
	queue   string
	handler nats.MsgHandler
}

func (f *fakeTransport) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	f.subject = subject
	f.queue = queue
	f.handler = handler
	return nil, nil
}

func TestConsumerSubscribesThroughTransport(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	transport := &fakeTransport{}
	c := NewTelemetryConsumer(transport, hub, "telemetry.events", "fleet-backend")

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if transport.subject != "telemetry.events" || transport.queue != "fleet-backend" {
		t.Errorf("subscribed to %s/%s", transport.subject, transport.queue)
	}
	if transport.handler == nil {
		t.Fatal("no handler registered")
	}

	data, _ := json.Marshal(telemetry("bus-1", 3))
	transport.handler(&nats.Msg{Subject: "telemetry.events", Data: data})

	if c.Consumed() != 1 {
		t.Errorf("consumed = %d, want 1", c.Consumed())
	}
}

func TestConsumerHandleMessage(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	c := &TelemetryConsumer{hub: hub}

	data, _ := json.Marshal(telemetry("bus-1", 3))
	c.handleMessage(data)

	if c.Consumed() != 1 {
		t.Errorf("consumed = %d, want 1", c.Consumed())
	}
	if _, ok := hub.GetVehicle("bus-1"); !ok {
		t.Error("consumed event must reach the hub")
	}
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	c := &TelemetryConsumer{hub: hub}

	c.handleMessage([]byte("not json"))

	invalid := telemetry("bus-1", 3)
	invalid.OccupancyCount = 99
	data, _ := json.Marshal(invalid)
	c.handleMessage(data)

	if c.ParseErrors() != 2 {
		t.Errorf("parse errors = %d, want 2", c.ParseErrors())
	}
	if c.Consumed() != 0 {
		t.Errorf("consumed = %d, want 0", c.Consumed())
	}
	if len(hub.GetAllVehicles()) != 0 {
		t.Error("malformed events must never reach the hub")
	}
}

func TestConsumerDefaultsConsent(t *testing.T) {
	hub := NewTelemetryHub(HubConfig{})
	c := &TelemetryConsumer{hub: hub}

	event := telemetry("bus-1", 3)
	event.ConsentStatus = ""
	data, _ := json.Marshal(event)
	c.handleMessage(data)

	status, ok := hub.GetVehicle("bus-1")
	if !ok {
		t.Fatal("event not consumed")
	}
	if status.ConsentStatus != models.ConsentGranted {
		t.Errorf("consent = %s, want granted default", status.ConsentStatus)
	}
}
