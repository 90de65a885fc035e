package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/fleetgate/backend/models"
)

// AlertBroadcaster fans geofence alerts out to its own subscriber
// set, independent of the telemetry feed. It is wired to a
// GeofenceMonitor through OnAlert.
type AlertBroadcaster struct {
	clientsMu sync.RWMutex
	clients   map[Subscriber]bool
}

// NewAlertBroadcaster creates an empty broadcaster.
func NewAlertBroadcaster() *AlertBroadcaster {
	return &AlertBroadcaster{clients: make(map[Subscriber]bool)}
}

// Register adds a subscriber to the alert feed.
func (b *AlertBroadcaster) Register(c Subscriber) {
	b.clientsMu.Lock()
	b.clients[c] = true
	b.clientsMu.Unlock()
}

// Unregister removes a subscriber; absent subscribers are a no-op.
func (b *AlertBroadcaster) Unregister(c Subscriber) {
	b.clientsMu.Lock()
	delete(b.clients, c)
	b.clientsMu.Unlock()
}

// ClientCount returns the current subscriber count.
func (b *AlertBroadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Broadcast delivers an alert to every subscriber; failed sends are
// treated as disconnects.
func (b *AlertBroadcaster) Broadcast(payload models.AlertPayload) {
	b.clientsMu.RLock()
	if len(b.clients) == 0 {
		b.clientsMu.RUnlock()
		return
	}
	clients := make([]Subscriber, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clientsMu.RUnlock()

	message, err := json.Marshal(map[string]interface{}{
		"type":  "alert",
		"alert": payload,
	})
	if err != nil {
		log.Printf("⚠️ Failed to serialize alert: %v", err)
		return
	}

	var disconnected []Subscriber
	for _, c := range clients {
		if err := c.Send(message); err != nil {
			disconnected = append(disconnected, c)
		}
	}
	if len(disconnected) > 0 {
		b.clientsMu.Lock()
		for _, c := range disconnected {
			delete(b.clients, c)
		}
		b.clientsMu.Unlock()
		for _, c := range disconnected {
			closeSubscriber(c)
		}
	}
}
