package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fleetgate/backend/models"
)

// Cooldown period between alerts for the same vehicle/geofence pair.
// Enter and exit share the same cooldown clock.
const defaultAlertCooldown = 300 * time.Second

// GeofenceSource is the read-only query the monitor issues against
// the persistence layer on every check.
type GeofenceSource interface {
	ListActive(ctx context.Context) ([]models.Geofence, error)
}

// AlertSink durably stores a candidate alert and assigns its identity.
type AlertSink interface {
	Persist(ctx context.Context, payload *models.AlertPayload) (uint, error)
}

// AlertCallback receives every emitted alert payload.
type AlertCallback func(models.AlertPayload)

// vehicleGeofenceState tracks one vehicle's position relative to all
// geofences. Each vehicle has its own lock so checks for different
// vehicles never block each other.
type vehicleGeofenceState struct {
	mu         sync.Mutex
	inside     map[uint]bool
	lastCheck  time.Time
	lastAlerts map[uint]time.Time
}

// GeofenceStats is a monitoring snapshot of the monitor.
type GeofenceStats struct {
	VehiclesTracked      int     `json:"vehicles_tracked"`
	AlertCooldownSeconds float64 `json:"alert_cooldown_seconds"`
}

// GeofenceMonitor detects boundary-crossing transitions per vehicle
// and emits de-duplicated enter/exit alerts.
type GeofenceMonitor struct {
	source   GeofenceSource
	sink     AlertSink
	cooldown time.Duration

	mu     sync.Mutex
	states map[string]*vehicleGeofenceState

	callbacksMu sync.RWMutex
	callbacks   []AlertCallback

	now func() time.Time
}

// NewGeofenceMonitor creates a monitor. sink may be nil when alerts
// are not persisted. A non-positive cooldown falls back to 300s.
func NewGeofenceMonitor(source GeofenceSource, sink AlertSink, cooldown time.Duration) *GeofenceMonitor {
	if cooldown <= 0 {
		cooldown = defaultAlertCooldown
	}
	return &GeofenceMonitor{
		source:   source,
		sink:     sink,
		cooldown: cooldown,
		states:   make(map[string]*vehicleGeofenceState),
		now:      time.Now,
	}
}

// OnAlert registers a callback invoked for every emitted alert. A
// panicking callback does not prevent the others from running.
func (m *GeofenceMonitor) OnAlert(cb AlertCallback) {
	m.callbacksMu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.callbacksMu.Unlock()
}

// CheckVehicle evaluates a vehicle's position against every active
// geofence and returns the alerts generated by enter/exit
// transitions. Checks for the same vehicle are serialized.
func (m *GeofenceMonitor) CheckVehicle(ctx context.Context, vehicleID string, lat, lng float64) ([]models.AlertPayload, error) {
	geofences, err := m.source.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active geofences: %w", err)
	}

	state := m.vehicleState(vehicleID)

	state.mu.Lock()
	now := m.now()
	currentlyInside := make(map[uint]bool)
	var emitted []models.AlertPayload

	for i := range geofences {
		gf := &geofences[i]
		isInside := PointInPolygon(lat, lng, gf.Polygon)
		if isInside {
			currentlyInside[gf.ID] = true
		}
		wasInside := state.inside[gf.ID]

		switch {
		case isInside && !wasInside:
			if gf.AlertOnEnter && m.canAlert(state, gf.ID, now) {
				emitted = append(emitted, buildAlertPayload(gf, vehicleID, models.GeofenceEnter, now))
				state.lastAlerts[gf.ID] = now
			}
		case !isInside && wasInside:
			if gf.AlertOnExit && m.canAlert(state, gf.ID, now) {
				emitted = append(emitted, buildAlertPayload(gf, vehicleID, models.GeofenceExit, now))
				state.lastAlerts[gf.ID] = now
			}
		}
	}

	state.inside = currentlyInside
	state.lastCheck = now
	state.mu.Unlock()

	for i := range emitted {
		if m.sink != nil {
			if _, err := m.sink.Persist(ctx, &emitted[i]); err != nil {
				log.Printf("⚠️ Failed to persist alert for %s: %v", vehicleID, err)
			}
		}
		m.notify(emitted[i])
	}

	return emitted, nil
}

// vehicleState returns the state for a vehicle, creating it lazily.
func (m *GeofenceMonitor) vehicleState(vehicleID string) *vehicleGeofenceState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[vehicleID]
	if !ok {
		state = &vehicleGeofenceState{
			inside:     make(map[uint]bool),
			lastAlerts: make(map[uint]time.Time),
		}
		m.states[vehicleID] = state
	}
	return state
}

// canAlert reports whether the cooldown window for this geofence has
// passed; caller holds state.mu.
func (m *GeofenceMonitor) canAlert(state *vehicleGeofenceState, geofenceID uint, now time.Time) bool {
	last, ok := state.lastAlerts[geofenceID]
	if !ok {
		return true
	}
	return now.Sub(last) > m.cooldown
}

func (m *GeofenceMonitor) notify(payload models.AlertPayload) {
	m.callbacksMu.RLock()
	callbacks := make([]AlertCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("⚠️ Alert callback panic: %v", r)
				}
			}()
			cb(payload)
		}()
	}
}

// Stats returns a monitoring snapshot.
func (m *GeofenceMonitor) Stats() GeofenceStats {
	m.mu.Lock()
	tracked := len(m.states)
	m.mu.Unlock()

	return GeofenceStats{
		VehiclesTracked:      tracked,
		AlertCooldownSeconds: m.cooldown.Seconds(),
	}
}

func buildAlertPayload(gf *models.Geofence, vehicleID string, event models.GeofenceEventType, now time.Time) models.AlertPayload {
	verb := "entered"
	title := "Vehicle Entered Zone"
	if event == models.GeofenceExit {
		verb = "exited"
		title = "Vehicle Exited Zone"
	}

	return models.AlertPayload{
		AlertType:    "geofence_" + string(event),
		Title:        title,
		Message:      fmt.Sprintf("Vehicle %s has %s geofence '%s'", vehicleID, verb, gf.Name),
		Severity:     models.SeverityInfo,
		VehicleID:    vehicleID,
		GeofenceID:   gf.ID,
		GeofenceName: gf.Name,
		UserID:       gf.UserID,
		EventType:    event,
		CreatedAt:    now,
	}
}
