package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/models"
)

type geofenceRequest struct {
	Name         string            `json:"name" binding:"required"`
	Description  *string           `json:"description"`
	Polygon      models.GeoPolygon `json:"polygon" binding:"required"`
	AlertOnEnter *bool             `json:"alertOnEnter"`
	AlertOnExit  *bool             `json:"alertOnExit"`
	IsActive     *bool             `json:"isActive"`
}

func validatePolygon(p models.GeoPolygon) error {
	if p.Type != "Polygon" {
		return fmt.Errorf("polygon type must be \"Polygon\", got %q", p.Type)
	}
	ring := p.OuterRing()
	if len(ring) < 3 {
		return errors.New("polygon outer ring needs at least 3 vertices")
	}
	for i, vertex := range ring {
		if len(vertex) < 2 {
			return fmt.Errorf("vertex %d must be a [lng, lat] pair", i)
		}
	}
	return nil
}

// GetGeofences handles GET /api/geofences
func GetGeofences(c *gin.Context) {
	if geofenceStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geofence store not initialized"})
		return
	}

	var userID *uint
	if userIDStr := c.Query("userId"); userIDStr != "" {
		if parsed, err := strconv.ParseUint(userIDStr, 10, 32); err == nil {
			id := uint(parsed)
			userID = &id
		}
	}

	geofences, err := geofenceStore.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch geofences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"geofences": geofences,
		"count":     len(geofences),
	})
}

// GetGeofence handles GET /api/geofences/:id
func GetGeofence(c *gin.Context) {
	if geofenceStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geofence store not initialized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence ID"})
		return
	}

	geofence, err := geofenceStore.Get(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Geofence not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch geofence"})
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// CreateGeofence handles POST /api/geofences
func CreateGeofence(c *gin.Context) {
	if geofenceStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geofence store not initialized"})
		return
	}

	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence payload: " + err.Error()})
		return
	}
	if err := validatePolygon(req.Polygon); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	geofence := models.Geofence{
		Name:         req.Name,
		Description:  req.Description,
		Polygon:      req.Polygon,
		AlertOnEnter: true,
		AlertOnExit:  true,
		IsActive:     true,
	}
	if req.AlertOnEnter != nil {
		geofence.AlertOnEnter = *req.AlertOnEnter
	}
	if req.AlertOnExit != nil {
		geofence.AlertOnExit = *req.AlertOnExit
	}
	if req.IsActive != nil {
		geofence.IsActive = *req.IsActive
	}

	if err := geofenceStore.Create(c.Request.Context(), &geofence); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create geofence"})
		return
	}

	log.Printf("🔔 Geofence created: %s (id=%d)", geofence.Name, geofence.ID)
	c.JSON(http.StatusCreated, geofence)
}

// UpdateGeofence handles PUT /api/geofences/:id
func UpdateGeofence(c *gin.Context) {
	if geofenceStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geofence store not initialized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence ID"})
		return
	}

	geofence, err := geofenceStore.Get(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Geofence not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch geofence"})
		return
	}

	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence payload: " + err.Error()})
		return
	}
	if err := validatePolygon(req.Polygon); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	geofence.Name = req.Name
	geofence.Description = req.Description
	geofence.Polygon = req.Polygon
	if req.AlertOnEnter != nil {
		geofence.AlertOnEnter = *req.AlertOnEnter
	}
	if req.AlertOnExit != nil {
		geofence.AlertOnExit = *req.AlertOnExit
	}
	if req.IsActive != nil {
		geofence.IsActive = *req.IsActive
	}

	if err := geofenceStore.Update(c.Request.Context(), geofence); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update geofence"})
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// DeleteGeofence handles DELETE /api/geofences/:id
func DeleteGeofence(c *gin.Context) {
	if geofenceStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geofence store not initialized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence ID"})
		return
	}

	if err := geofenceStore.Delete(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete geofence"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Geofence deleted"})
}

// GetAlerts handles GET /api/alerts - persisted geofence alerts,
// newest first.
func GetAlerts(c *gin.Context) {
	if alertStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert store not initialized"})
		return
	}

	filter := database.AlertFilter{
		VehicleID:  c.Query("vehicleId"),
		UnreadOnly: c.Query("unread") == "true",
		Limit:      parseLimit(c, 50, 500),
	}
	if geofenceIDStr := c.Query("geofenceId"); geofenceIDStr != "" {
		if parsed, err := strconv.ParseUint(geofenceIDStr, 10, 32); err == nil {
			id := uint(parsed)
			filter.GeofenceID = &id
		}
	}

	alerts, err := alertStore.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// MarkAlertRead handles PUT /api/alerts/:id/read
func MarkAlertRead(c *gin.Context) {
	if alertStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert store not initialized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	if err := alertStore.MarkRead(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert marked as read"})
}
