package models

import (
	"time"
)

// ConsentStatus enum (GDPR consent states)
type ConsentStatus string

const (
	ConsentGranted   ConsentStatus = "granted"
	ConsentPending   ConsentStatus = "pending"
	ConsentWithdrawn ConsentStatus = "withdrawn"
	ConsentExpired   ConsentStatus = "expired"
)

// Valid reports whether s is a known consent status.
func (s ConsentStatus) Valid() bool {
	switch s {
	case ConsentGranted, ConsentPending, ConsentWithdrawn, ConsentExpired:
		return true
	}
	return false
}

// AnonymizationLevel enum
type AnonymizationLevel string

const (
	AnonymizationNone       AnonymizationLevel = "none"       // raw data, consent granted
	AnonymizationPartial    AnonymizationLevel = "partial"    // PII redacted, data usable
	AnonymizationFull       AnonymizationLevel = "full"       // identifying info removed, GPS coarsened
	AnonymizationAggregated AnonymizationLevel = "aggregated" // statistical fields only
)

// Valid reports whether l is a known anonymization level.
func (l AnonymizationLevel) Valid() bool {
	switch l {
	case AnonymizationNone, AnonymizationPartial, AnonymizationFull, AnonymizationAggregated:
		return true
	}
	return false
}

// TelemetryRecord is the unit of data the privacy engine gates and
// transforms. Raw, partial and full records share the same field set;
// an aggregated record carries only Timestamp, OccupancyCount, RouteID
// and Region, with everything else zeroed.
type TelemetryRecord struct {
	Level AnonymizationLevel `json:"anonymization_level"`

	VehicleID          string        `json:"vehicle_id,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
	OccupancyCount     int           `json:"occupancy_count"`
	InferenceLatencyMS float64       `json:"inference_latency_ms,omitempty"`
	Location           *GPSLocation  `json:"location,omitempty"`
	FrameHash          string        `json:"frame_hash,omitempty"`
	SessionID          string        `json:"session_id,omitempty"`
	ConsentStatus      ConsentStatus `json:"consent_status,omitempty"`
	RouteID            string        `json:"route_id,omitempty"`
	SpeedKMH           *float64      `json:"speed_kmh,omitempty"`
	HeadingDegrees     *float64      `json:"heading_degrees,omitempty"`

	// PII-bearing fields
	DriverID     string `json:"driver_id,omitempty"`
	DriverName   string `json:"driver_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	VIN          string `json:"vin,omitempty"`
	Notes        string `json:"notes,omitempty"`

	// Coarse region, set only for aggregated records
	Region string `json:"region,omitempty"`
}

// NewTelemetryRecord builds a raw record from a telemetry event.
func NewTelemetryRecord(t *VehicleTelemetry) *TelemetryRecord {
	loc := t.Location
	return &TelemetryRecord{
		Level:              AnonymizationNone,
		VehicleID:          t.VehicleID,
		Timestamp:          t.Timestamp,
		OccupancyCount:     t.OccupancyCount,
		InferenceLatencyMS: t.InferenceLatencyMS,
		Location:           &loc,
		FrameHash:          t.FrameHash,
		ConsentStatus:      t.ConsentStatus,
		RouteID:            t.RouteID,
		SpeedKMH:           t.SpeedKMH,
		HeadingDegrees:     t.HeadingDegrees,
	}
}

// PrivacyAuditEntry records a single privacy-relevant decision.
type PrivacyAuditEntry struct {
	Timestamp            time.Time `json:"timestamp"`
	Operation            string    `json:"operation"`
	VehicleID            string    `json:"vehicle_id"`
	ConsentStatus        string    `json:"consent_status"`
	AnonymizationApplied string    `json:"anonymization_applied"`
	DataRetained         bool      `json:"data_retained"`
	Reason               string    `json:"reason"`
}

// DataSubjectReport is a GDPR right-of-access report for one vehicle.
type DataSubjectReport struct {
	VehicleID            string              `json:"vehicle_id"`
	ConsentStatus        ConsentStatus       `json:"consent_status"`
	LastDataUpdate       *time.Time          `json:"last_data_update,omitempty"`
	ProcessingActivities []PrivacyAuditEntry `json:"processing_activities"`
	ReportGeneratedAt    time.Time           `json:"report_generated_at"`
}
