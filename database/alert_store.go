package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fleetgate/backend/models"
)

// AlertStore durably stores alerts emitted by the geofence monitor.
// It implements services.AlertSink.
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore creates a store on an open connection.
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Persist stores a candidate alert payload and returns its assigned
// id.
func (s *AlertStore) Persist(ctx context.Context, payload *models.AlertPayload) (uint, error) {
	alert := models.Alert{
		UserID:     payload.UserID,
		AlertType:  payload.AlertType,
		Title:      payload.Title,
		Message:    payload.Message,
		Severity:   payload.Severity,
		VehicleID:  payload.VehicleID,
		GeofenceID: payload.GeofenceID,
		ExtraData: models.NewJSONB(map[string]interface{}{
			"geofence_name": payload.GeofenceName,
			"event_type":    string(payload.EventType),
			"timestamp":     payload.CreatedAt.Format(time.RFC3339),
		}),
	}
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return 0, err
	}
	return alert.ID, nil
}

// AlertFilter narrows List results.
type AlertFilter struct {
	VehicleID  string
	GeofenceID *uint
	UnreadOnly bool
	Limit      int
}

// List returns alerts matching the filter, newest first.
func (s *AlertStore) List(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.VehicleID != "" {
		query = query.Where("vehicle_id = ?", filter.VehicleID)
	}
	if filter.GeofenceID != nil {
		query = query.Where("geofence_id = ?", *filter.GeofenceID)
	}
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var alerts []models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkRead flags an alert as read.
func (s *AlertStore) MarkRead(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).Update("is_read", true).Error
}
