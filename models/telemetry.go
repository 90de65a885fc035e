package models

import (
	"fmt"
	"time"
)

// GPSLocation is a WGS84 coordinate pair.
type GPSLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks coordinate ranges
func (l GPSLocation) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", l.Longitude)
	}
	return nil
}

// VehicleTelemetry is a single telemetry event reported by a vehicle.
// Events are immutable once submitted to the hub.
type VehicleTelemetry struct {
	VehicleID          string        `json:"vehicle_id"`
	Timestamp          time.Time     `json:"timestamp"`
	OccupancyCount     int           `json:"occupancy_count"`
	InferenceLatencyMS float64       `json:"inference_latency_ms"`
	Location           GPSLocation   `json:"location"`
	FrameHash          string        `json:"frame_hash"`
	ConsentStatus      ConsentStatus `json:"consent_status"`
	RouteID            string        `json:"route_id,omitempty"`
	SpeedKMH           *float64      `json:"speed_kmh,omitempty"`
	HeadingDegrees     *float64      `json:"heading_degrees,omitempty"`
}

// Validate enforces the field ranges callers must guarantee before
// submitting an event to the hub.
func (t *VehicleTelemetry) Validate() error {
	if t.VehicleID == "" {
		return fmt.Errorf("vehicle_id is required")
	}
	if t.OccupancyCount < 0 || t.OccupancyCount > 10 {
		return fmt.Errorf("occupancy_count %d out of range [0, 10]", t.OccupancyCount)
	}
	if t.InferenceLatencyMS < 0 {
		return fmt.Errorf("inference_latency_ms must be >= 0")
	}
	if err := t.Location.Validate(); err != nil {
		return err
	}
	if t.HeadingDegrees != nil && (*t.HeadingDegrees < 0 || *t.HeadingDegrees > 360) {
		return fmt.Errorf("heading_degrees %f out of range [0, 360]", *t.HeadingDegrees)
	}
	return nil
}

// VehicleStatus is the current derived status of a tracked vehicle.
type VehicleStatus struct {
	VehicleID          string        `json:"vehicle_id"`
	LastSeen           time.Time     `json:"last_seen"`
	OccupancyCount     int           `json:"occupancy_count"`
	Location           GPSLocation   `json:"location"`
	InferenceLatencyMS float64       `json:"inference_latency_ms"`
	ConsentStatus      ConsentStatus `json:"consent_status"`
	RouteID            string        `json:"route_id,omitempty"`
	SpeedKMH           *float64      `json:"speed_kmh,omitempty"`
	IsActive           bool          `json:"is_active"`
}

// FleetSummary is an aggregate view over all tracked vehicles.
type FleetSummary struct {
	TotalVehicles       int       `json:"total_vehicles"`
	ActiveVehicles      int       `json:"active_vehicles"`
	TotalPassengers     int       `json:"total_passengers"`
	AverageOccupancy    float64   `json:"average_occupancy"`
	AverageLatencyMS    float64   `json:"average_latency_ms"`
	ConsentGrantedCount int       `json:"consent_granted_count"`
	Timestamp           time.Time `json:"timestamp"`
}
