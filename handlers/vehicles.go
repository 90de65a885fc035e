package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetVehicles handles GET /api/vehicles - current state of every known vehicle
func GetVehicles(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	vehicles := hub.GetAllVehicles()
	c.JSON(http.StatusOK, gin.H{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}

// GetVehicle handles GET /api/vehicles/:vehicleId
func GetVehicle(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	vehicleID := c.Param("vehicleId")
	status, ok := hub.GetVehicle(vehicleID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetVehicleHistory handles GET /api/vehicles/:vehicleId/history
func GetVehicleHistory(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	vehicleID := c.Param("vehicleId")
	limit := parseLimit(c, 100, 1000)

	history := hub.GetVehicleHistory(vehicleID, limit)
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id": vehicleID,
		"history":    history,
		"count":      len(history),
	})
}

// parseLimit reads a ?limit= query parameter, clamped to [1, max].
func parseLimit(c *gin.Context, fallback, max int) int {
	limit := fallback
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
