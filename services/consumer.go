package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/fleetgate/backend/models"
)

// TelemetryTransport is the subscription side of the internal message
// bus as the consumer sees it.
type TelemetryTransport interface {
	QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// TelemetryConsumer subscribes to the telemetry subject and feeds
// every valid event to the hub. Multiple backend instances share the
// load through the queue group.
type TelemetryConsumer struct {
	transport TelemetryTransport
	hub       *TelemetryHub
	subject   string
	queue     string

	sub         *nats.Subscription
	consumed    uint64
	parseErrors uint64
}

// NewTelemetryConsumer creates a consumer; call Start to begin
// receiving.
func NewTelemetryConsumer(transport TelemetryTransport, hub *TelemetryHub, subject, queue string) *TelemetryConsumer {
	return &TelemetryConsumer{
		transport: transport,
		hub:       hub,
		subject:   subject,
		queue:     queue,
	}
}

// Start subscribes to the telemetry subject.
func (c *TelemetryConsumer) Start() error {
	sub, err := c.transport.QueueSubscribe(c.subject, c.queue, func(msg *nats.Msg) {
		c.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	log.Printf("📡 Telemetry consumer subscribed to %s (queue %s)", c.subject, c.queue)
	return nil
}

// Stop unsubscribes; pending messages are dropped.
func (c *TelemetryConsumer) Stop() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}

// handleMessage decodes and validates one event before handing it to
// the hub. Malformed events are counted and dropped at this boundary.
func (c *TelemetryConsumer) handleMessage(data []byte) {
	var t models.VehicleTelemetry
	if err := json.Unmarshal(data, &t); err != nil {
		atomic.AddUint64(&c.parseErrors, 1)
		log.Printf("⚠️ Failed to decode telemetry message: %v", err)
		return
	}
	if t.ConsentStatus == "" {
		t.ConsentStatus = models.ConsentGranted
	}
	if err := t.Validate(); err != nil {
		atomic.AddUint64(&c.parseErrors, 1)
		log.Printf("⚠️ Rejected invalid telemetry: %v", err)
		return
	}

	c.hub.ProcessTelemetry(&t)
	atomic.AddUint64(&c.consumed, 1)
}

// Consumed returns the number of successfully processed messages.
func (c *TelemetryConsumer) Consumed() uint64 {
	return atomic.LoadUint64(&c.consumed)
}

// ParseErrors returns the number of dropped malformed messages.
func (c *TelemetryConsumer) ParseErrors() uint64 {
	return atomic.LoadUint64(&c.parseErrors)
}
