package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fleetgate/backend/models"
)

const (
	defaultHistorySize       = 10000
	defaultInactiveThreshold = 30 * time.Second
)

// Subscriber is the capability a live-feed consumer must expose. A
// failed Send means the subscriber is gone; the hub removes it and
// never retries.
type Subscriber interface {
	Send(message []byte) error
}

// closeSubscriber tears down a subscriber dropped after a failed send.
// Without this a slow but still-connected peer would keep its
// transport open while receiving nothing.
func closeSubscriber(c Subscriber) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

// GeofenceChecker is the hub's view of the geofence monitor. Errors
// from CheckVehicle are logged and never propagated into the
// telemetry pipeline.
type GeofenceChecker interface {
	CheckVehicle(ctx context.Context, vehicleID string, lat, lng float64) ([]models.AlertPayload, error)
}

// vehicleState is the hub-owned mutable state for one vehicle.
type vehicleState struct {
	lastTelemetry models.VehicleTelemetry
	lastUpdated   time.Time
	messageCount  int
}

// HubConfig configures a telemetry hub.
type HubConfig struct {
	InactiveThreshold time.Duration
	HistorySize       int

	// Optional collaborators. A nil Privacy disables consent
	// filtering; a nil Geofence disables boundary checks.
	Privacy  *PrivacyEngine
	Geofence GeofenceChecker
}

// HubStats is a monitoring snapshot of hub state.
type HubStats struct {
	VehicleCount      int           `json:"vehicle_count"`
	ActiveVehicles    int           `json:"active_vehicles"`
	TotalPassengers   int           `json:"total_passengers"`
	MessagesProcessed int           `json:"messages_processed"`
	MessagesFiltered  int           `json:"messages_filtered"`
	SubscriberCount   int           `json:"subscriber_count"`
	AvgLatencyMS      float64       `json:"avg_latency_ms"`
	HistorySize       int           `json:"history_size"`
	PrivacyEnabled    bool          `json:"privacy_enabled"`
	PrivacyStats      *PrivacyStats `json:"privacy_stats,omitempty"`
}

// TelemetryHub is the single authoritative in-memory view of the
// fleet: per-vehicle state, bounded history and the subscriber
// registry. Every telemetry event passes through ProcessTelemetry
// exactly once.
type TelemetryHub struct {
	inactiveThreshold time.Duration
	privacy           *PrivacyEngine
	geofence          GeofenceChecker

	// mu guards vehicles, history and the counters; state mutation
	// and history append are atomic per event.
	mu        sync.Mutex
	vehicles  map[string]*vehicleState
	history   *historyRing
	processed int
	filtered  int

	// subscriber set has its own lock so broadcasts do not serialize
	// behind state updates.
	clientsMu sync.RWMutex
	clients   map[Subscriber]bool

	now func() time.Time
}

// NewTelemetryHub creates a hub. Zero config values fall back to the
// defaults (30s inactive threshold, 10k history entries).
func NewTelemetryHub(cfg HubConfig) *TelemetryHub {
	if cfg.InactiveThreshold <= 0 {
		cfg.InactiveThreshold = defaultInactiveThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &TelemetryHub{
		inactiveThreshold: cfg.InactiveThreshold,
		privacy:           cfg.Privacy,
		geofence:          cfg.Geofence,
		vehicles:          make(map[string]*vehicleState),
		history:           newHistoryRing(cfg.HistorySize),
		clients:           make(map[Subscriber]bool),
		now:               time.Now,
	}
}

// PrivacyEngine returns the attached privacy engine, or nil.
func (h *TelemetryHub) PrivacyEngine() *PrivacyEngine {
	return h.privacy
}

// ProcessTelemetry runs one event through the pipeline: privacy gate,
// state + history update, broadcast, geofence check.
func (h *TelemetryHub) ProcessTelemetry(t *models.VehicleTelemetry) {
	if h.privacy != nil {
		if h.privacy.ProcessTelemetry(models.NewTelemetryRecord(t), t.VehicleID) == nil {
			h.mu.Lock()
			h.filtered++
			h.mu.Unlock()
			return
		}
	}

	now := h.now()

	h.mu.Lock()
	if state, ok := h.vehicles[t.VehicleID]; ok {
		state.lastTelemetry = *t
		state.lastUpdated = now
		state.messageCount++
	} else {
		h.vehicles[t.VehicleID] = &vehicleState{
			lastTelemetry: *t,
			lastUpdated:   now,
			messageCount:  1,
		}
	}
	h.history.push(*t)
	h.processed++
	h.mu.Unlock()

	h.broadcast(t)

	if h.geofence != nil {
		if _, err := h.geofence.CheckVehicle(context.Background(), t.VehicleID, t.Location.Latitude, t.Location.Longitude); err != nil {
			log.Printf("⚠️ Geofence check failed for %s: %v", t.VehicleID, err)
		}
	}
}

// broadcast serializes the event once and delivers it to a snapshot
// of the subscriber set. Subscribers whose send fails are removed
// after the delivery pass.
func (h *TelemetryHub) broadcast(t *models.VehicleTelemetry) {
	h.clientsMu.RLock()
	if len(h.clients) == 0 {
		h.clientsMu.RUnlock()
		return
	}
	clients := make([]Subscriber, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	message, err := json.Marshal(t)
	if err != nil {
		log.Printf("⚠️ Failed to serialize telemetry for %s: %v", t.VehicleID, err)
		return
	}

	var disconnected []Subscriber
	for _, c := range clients {
		if err := c.Send(message); err != nil {
			disconnected = append(disconnected, c)
		}
	}

	if len(disconnected) > 0 {
		h.clientsMu.Lock()
		for _, c := range disconnected {
			delete(h.clients, c)
		}
		h.clientsMu.Unlock()
		for _, c := range disconnected {
			closeSubscriber(c)
		}
		log.Printf("🔌 Removed %d disconnected subscribers", len(disconnected))
	}
}

// RegisterClient adds a subscriber to the live feed.
func (h *TelemetryHub) RegisterClient(c Subscriber) {
	h.clientsMu.Lock()
	h.clients[c] = true
	h.clientsMu.Unlock()
}

// UnregisterClient removes a subscriber; removing an absent
// subscriber is a no-op.
func (h *TelemetryHub) UnregisterClient(c Subscriber) {
	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()
}

// ClientCount returns the current subscriber count.
func (h *TelemetryHub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// GetVehicle returns the derived status of one vehicle.
func (h *TelemetryHub) GetVehicle(vehicleID string) (models.VehicleStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.vehicles[vehicleID]
	if !ok {
		return models.VehicleStatus{}, false
	}
	return h.statusLocked(state), true
}

// statusLocked derives a VehicleStatus snapshot; caller holds h.mu.
func (h *TelemetryHub) statusLocked(state *vehicleState) models.VehicleStatus {
	t := state.lastTelemetry
	return models.VehicleStatus{
		VehicleID:          t.VehicleID,
		LastSeen:           state.lastUpdated,
		OccupancyCount:     t.OccupancyCount,
		Location:           t.Location,
		InferenceLatencyMS: t.InferenceLatencyMS,
		ConsentStatus:      t.ConsentStatus,
		RouteID:            t.RouteID,
		SpeedKMH:           t.SpeedKMH,
		IsActive:           h.now().Sub(state.lastUpdated) < h.inactiveThreshold,
	}
}

// GetAllVehicles returns the status of every tracked vehicle, sorted
// by vehicle id for stable output.
func (h *TelemetryHub) GetAllVehicles() []models.VehicleStatus {
	h.mu.Lock()
	statuses := make([]models.VehicleStatus, 0, len(h.vehicles))
	for _, state := range h.vehicles {
		statuses = append(statuses, h.statusLocked(state))
	}
	h.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].VehicleID < statuses[j].VehicleID
	})
	return statuses
}

// GetFleetSummary aggregates over all tracked vehicles. An empty hub
// yields an all-zero summary.
func (h *TelemetryHub) GetFleetSummary() models.FleetSummary {
	vehicles := h.GetAllVehicles()

	summary := models.FleetSummary{Timestamp: h.now()}
	if len(vehicles) == 0 {
		return summary
	}

	var totalLatency float64
	for _, v := range vehicles {
		if v.IsActive {
			summary.ActiveVehicles++
		}
		summary.TotalPassengers += v.OccupancyCount
		totalLatency += v.InferenceLatencyMS
		if v.ConsentStatus == models.ConsentGranted {
			summary.ConsentGrantedCount++
		}
	}
	summary.TotalVehicles = len(vehicles)
	summary.AverageOccupancy = float64(summary.TotalPassengers) / float64(len(vehicles))
	summary.AverageLatencyMS = totalLatency / float64(len(vehicles))
	return summary
}

// GetRecentHistory returns the last limit events in insertion order.
func (h *TelemetryHub) GetRecentHistory(limit int) []models.VehicleTelemetry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.recent(limit)
}

// GetVehicleHistory returns the last limit events for one vehicle in
// insertion order.
func (h *TelemetryHub) GetVehicleHistory(vehicleID string, limit int) []models.VehicleTelemetry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.recentForVehicle(vehicleID, limit)
}

// Stats returns a monitoring snapshot of the hub.
func (h *TelemetryHub) Stats() HubStats {
	summary := h.GetFleetSummary()

	h.mu.Lock()
	processed := h.processed
	filtered := h.filtered
	historySize := h.history.size()
	h.mu.Unlock()

	stats := HubStats{
		VehicleCount:      summary.TotalVehicles,
		ActiveVehicles:    summary.ActiveVehicles,
		TotalPassengers:   summary.TotalPassengers,
		MessagesProcessed: processed,
		MessagesFiltered:  filtered,
		SubscriberCount:   h.ClientCount(),
		AvgLatencyMS:      summary.AverageLatencyMS,
		HistorySize:       historySize,
	}
	if h.privacy != nil {
		stats.PrivacyEnabled = true
		ps := h.privacy.GetPrivacyStats()
		stats.PrivacyStats = &ps
	}
	return stats
}

// historyRing is a fixed-capacity FIFO over telemetry events; the
// oldest entry is overwritten once the buffer is full.
type historyRing struct {
	buf   []models.VehicleTelemetry
	start int
	count int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{buf: make([]models.VehicleTelemetry, capacity)}
}

func (r *historyRing) push(t models.VehicleTelemetry) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = t
		r.count++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

func (r *historyRing) size() int {
	return r.count
}

// recent returns the last limit entries in insertion order.
func (r *historyRing) recent(limit int) []models.VehicleTelemetry {
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]models.VehicleTelemetry, 0, limit)
	for i := r.count - limit; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// recentForVehicle returns the last limit entries for one vehicle in
// insertion order.
func (r *historyRing) recentForVehicle(vehicleID string, limit int) []models.VehicleTelemetry {
	var matches []models.VehicleTelemetry
	for i := 0; i < r.count; i++ {
		t := r.buf[(r.start+i)%len(r.buf)]
		if t.VehicleID == vehicleID {
			matches = append(matches, t)
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches
}
