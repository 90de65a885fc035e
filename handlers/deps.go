// Package handlers exposes the HTTP and WebSocket surface of the
// gateway on top of the services core.
package handlers

import (
	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/services"
)

var (
	hub           *services.TelemetryHub
	monitor       *services.GeofenceMonitor
	alertFeed     *services.AlertBroadcaster
	summaryFeed   *services.SummaryFeed
	geofenceStore *database.GeofenceStore
	alertStore    *database.AlertStore
)

// SetHub wires the telemetry hub into the handlers.
func SetHub(h *services.TelemetryHub) {
	hub = h
}

// SetMonitor wires the geofence monitor into the handlers.
func SetMonitor(m *services.GeofenceMonitor) {
	monitor = m
}

// SetAlertFeed wires the alert broadcaster into the handlers.
func SetAlertFeed(b *services.AlertBroadcaster) {
	alertFeed = b
}

// SetSummaryFeed wires the periodic summary feed into the handlers.
func SetSummaryFeed(f *services.SummaryFeed) {
	summaryFeed = f
}

// SetStores wires the persistence stores into the handlers.
func SetStores(gs *database.GeofenceStore, as *database.AlertStore) {
	geofenceStore = gs
	alertStore = as
}
