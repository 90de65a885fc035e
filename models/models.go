package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AlertSeverity enum
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// GeofenceEventType enum
type GeofenceEventType string

const (
	GeofenceEnter GeofenceEventType = "enter"
	GeofenceExit  GeofenceEventType = "exit"
)

// JSONB type for GORM - can handle both objects and arrays
type JSONB struct {
	Data interface{} `json:"-"`
}

// NewJSONB creates a new JSONB from any value
func NewJSONB(v interface{}) JSONB {
	return JSONB{Data: v}
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j.Data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

func (j JSONB) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		j.Data = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &j.Data)
}

// GeoPolygon is a GeoJSON-style polygon. Only the outer ring
// (Coordinates[0]) is used for containment tests; inner rings are
// ignored. Ring vertices are (lng, lat) pairs and the ring is
// implicitly closed.
type GeoPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// OuterRing returns the outer ring, or nil for a degenerate polygon.
func (p GeoPolygon) OuterRing() [][]float64 {
	if p.Type != "Polygon" || len(p.Coordinates) == 0 {
		return nil
	}
	return p.Coordinates[0]
}

func (p GeoPolygon) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *GeoPolygon) Scan(value interface{}) error {
	if value == nil {
		*p = GeoPolygon{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("unsupported type for GeoPolygon: %T", value)
		}
	}
	return json.Unmarshal(bytes, p)
}

// Geofence model - a user-defined polygonal boundary
type Geofence struct {
	ID           uint       `gorm:"primaryKey;column:id" json:"id"`
	UserID       uint       `gorm:"column:user_id;index" json:"userId"`
	Name         string     `gorm:"column:name" json:"name"`
	Description  *string    `gorm:"column:description" json:"description,omitempty"`
	Polygon      GeoPolygon `gorm:"type:jsonb;column:polygon" json:"polygon"`
	AlertOnEnter bool       `gorm:"column:alert_on_enter;default:true" json:"alertOnEnter"`
	AlertOnExit  bool       `gorm:"column:alert_on_exit;default:true" json:"alertOnExit"`
	IsActive     bool       `gorm:"column:is_active;default:true;index" json:"isActive"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Alerts []Alert `gorm:"foreignKey:GeofenceID" json:"alerts,omitempty"`
}

func (Geofence) TableName() string {
	return "geofences"
}

// Alert model - a persisted geofence crossing alert
type Alert struct {
	ID         uint          `gorm:"primaryKey;column:id" json:"id"`
	UserID     uint          `gorm:"column:user_id;index" json:"userId"`
	AlertType  string        `gorm:"column:alert_type" json:"alertType"`
	Title      string        `gorm:"column:title" json:"title"`
	Message    string        `gorm:"column:message" json:"message"`
	Severity   AlertSeverity `gorm:"column:severity;default:info" json:"severity"`
	VehicleID  string        `gorm:"column:vehicle_id;index" json:"vehicleId"`
	GeofenceID uint          `gorm:"column:geofence_id;index" json:"geofenceId"`
	IsRead     bool          `gorm:"column:is_read;default:false" json:"isRead"`
	ExtraData  JSONB         `gorm:"type:jsonb;column:extra_data" json:"extraData,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (Alert) TableName() string {
	return "alerts"
}

// AlertPayload is the candidate alert produced by the geofence monitor.
// Identity assignment and durable storage belong to the alert store.
type AlertPayload struct {
	AlertType    string            `json:"alert_type"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Severity     AlertSeverity     `json:"severity"`
	VehicleID    string            `json:"vehicle_id"`
	GeofenceID   uint              `json:"geofence_id"`
	GeofenceName string            `json:"geofence_name"`
	UserID       uint              `json:"user_id"`
	EventType    GeofenceEventType `json:"event_type"`
	CreatedAt    time.Time         `json:"created_at"`
}
