package natsserver

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fleetgate/backend/services"
)

// The wrapper is the transport seam the simulator and consumer are
// wired to.
var (
	_ services.TelemetryPublisher = (*EmbeddedNATS)(nil)
	_ services.TelemetryTransport = (*EmbeddedNATS)(nil)
)

const testPort = 14233

func TestEmbeddedNATSPublishRoundTrip(t *testing.T) {
	srv, err := New(Config{Port: testPort})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Shutdown()

	if srv.Port() != testPort {
		t.Errorf("Port() = %d, want %d", srv.Port(), testPort)
	}
	if want := fmt.Sprintf("nats://localhost:%d", testPort); srv.Address() != want {
		t.Errorf("Address() = %q, want %q", srv.Address(), want)
	}

	received := make(chan []byte, 1)
	sub, err := srv.QueueSubscribe("telemetry.events", "fleet-backend", func(msg *nats.Msg) {
		received <- msg.Data
	})
	if err != nil {
		t.Fatalf("QueueSubscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := srv.Publish("telemetry.events", []byte(`{"vehicle_id":"bus-1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != `{"vehicle_id":"bus-1"}` {
			t.Errorf("received %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered to the queue subscriber")
	}

	stats := srv.GetStats()
	if stats.EventsPublished != 1 {
		t.Errorf("EventsPublished = %d, want 1", stats.EventsPublished)
	}
	if stats.EventsDropped != 0 {
		t.Errorf("EventsDropped = %d, want 0", stats.EventsDropped)
	}
	if stats.Clients < 1 {
		t.Errorf("Clients = %d, want at least the internal client", stats.Clients)
	}
}

func TestEmbeddedNATSPublishFailureCounted(t *testing.T) {
	srv, err := New(Config{Port: testPort + 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Shutdown()

	srv.conn.Close()

	if err := srv.Publish("telemetry.events", []byte("x")); err == nil {
		t.Fatal("expected publish on a closed connection to fail")
	}
	stats := srv.GetStats()
	if stats.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", stats.EventsDropped)
	}
	if stats.EventsPublished != 0 {
		t.Errorf("EventsPublished = %d, want 0", stats.EventsPublished)
	}
}
