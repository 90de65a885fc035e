package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/fleetgate/backend/models"
)

// GeofenceStore is the persistence collaborator for geofence
// boundaries. It implements services.GeofenceSource.
type GeofenceStore struct {
	db *gorm.DB
}

// NewGeofenceStore creates a store on an open connection.
func NewGeofenceStore(db *gorm.DB) *GeofenceStore {
	return &GeofenceStore{db: db}
}

// ListActive returns every active geofence; issued by the monitor on
// each vehicle check.
func (s *GeofenceStore) ListActive(ctx context.Context) ([]models.Geofence, error) {
	var geofences []models.Geofence
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&geofences).Error; err != nil {
		return nil, err
	}
	return geofences, nil
}

// List returns all geofences, optionally filtered by owner.
func (s *GeofenceStore) List(ctx context.Context, userID *uint) ([]models.Geofence, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var geofences []models.Geofence
	if err := query.Find(&geofences).Error; err != nil {
		return nil, err
	}
	return geofences, nil
}

// Get returns one geofence by id.
func (s *GeofenceStore) Get(ctx context.Context, id uint) (*models.Geofence, error) {
	var geofence models.Geofence
	if err := s.db.WithContext(ctx).First(&geofence, id).Error; err != nil {
		return nil, err
	}
	return &geofence, nil
}

// Create stores a new geofence and assigns its id.
func (s *GeofenceStore) Create(ctx context.Context, geofence *models.Geofence) error {
	return s.db.WithContext(ctx).Create(geofence).Error
}

// Update persists modified geofence fields.
func (s *GeofenceStore) Update(ctx context.Context, geofence *models.Geofence) error {
	return s.db.WithContext(ctx).Save(geofence).Error
}

// Delete removes a geofence by id.
func (s *GeofenceStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Geofence{}, id).Error
}
