package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// SummaryFeed periodically pushes an aggregated fleet summary to its
// subscribers; a lighter-weight alternative to the full telemetry
// feed.
type SummaryFeed struct {
	hub      *TelemetryHub
	interval time.Duration

	clientsMu sync.RWMutex
	clients   map[Subscriber]bool
}

// NewSummaryFeed creates a feed over the hub. A non-positive interval
// falls back to one second.
func NewSummaryFeed(hub *TelemetryHub, interval time.Duration) *SummaryFeed {
	if interval <= 0 {
		interval = time.Second
	}
	return &SummaryFeed{
		hub:      hub,
		interval: interval,
		clients:  make(map[Subscriber]bool),
	}
}

// Register adds a subscriber to the summary feed.
func (f *SummaryFeed) Register(c Subscriber) {
	f.clientsMu.Lock()
	f.clients[c] = true
	f.clientsMu.Unlock()
}

// Unregister removes a subscriber; absent subscribers are a no-op.
func (f *SummaryFeed) Unregister(c Subscriber) {
	f.clientsMu.Lock()
	delete(f.clients, c)
	f.clientsMu.Unlock()
}

// ClientCount returns the current subscriber count.
func (f *SummaryFeed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

// Run broadcasts one summary per interval until the context is
// canceled.
func (f *SummaryFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.tick()
		}
	}
}

func (f *SummaryFeed) tick() {
	f.clientsMu.RLock()
	if len(f.clients) == 0 {
		f.clientsMu.RUnlock()
		return
	}
	clients := make([]Subscriber, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clientsMu.RUnlock()

	message, err := json.Marshal(f.hub.GetFleetSummary())
	if err != nil {
		log.Printf("⚠️ Failed to serialize fleet summary: %v", err)
		return
	}

	var disconnected []Subscriber
	for _, c := range clients {
		if err := c.Send(message); err != nil {
			disconnected = append(disconnected, c)
		}
	}
	if len(disconnected) > 0 {
		f.clientsMu.Lock()
		for _, c := range disconnected {
			delete(f.clients, c)
		}
		f.clientsMu.Unlock()
		for _, c := range disconnected {
			closeSubscriber(c)
		}
	}
}
