package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetgate/backend/models"
)

// PostTelemetry handles POST /api/telemetry/ingest - direct HTTP
// ingestion for edge devices that cannot speak NATS.
func PostTelemetry(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	var telemetry models.VehicleTelemetry
	if err := c.ShouldBindJSON(&telemetry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telemetry payload: " + err.Error()})
		return
	}

	// Devices that predate the consent rollout omit the field
	if telemetry.ConsentStatus == "" {
		telemetry.ConsentStatus = models.ConsentGranted
	}

	if err := telemetry.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	hub.ProcessTelemetry(&telemetry)
	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"vehicle_id": telemetry.VehicleID,
	})
}

// PostTelemetryBatch handles POST /api/telemetry/ingest/batch
func PostTelemetryBatch(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	var batch []models.VehicleTelemetry
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telemetry batch: " + err.Error()})
		return
	}

	accepted := 0
	rejected := 0
	for i := range batch {
		if batch[i].ConsentStatus == "" {
			batch[i].ConsentStatus = models.ConsentGranted
		}
		if err := batch[i].Validate(); err != nil {
			rejected++
			continue
		}
		hub.ProcessTelemetry(&batch[i])
		accepted++
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"accepted": accepted,
		"rejected": rejected,
	})
}
