package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetgate/backend/models"
	"github.com/fleetgate/backend/services"
)

func privacyEngine(c *gin.Context) *services.PrivacyEngine {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return nil
	}
	engine := hub.PrivacyEngine()
	if engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Privacy engine disabled"})
		return nil
	}
	return engine
}

// GetPrivacyStats handles GET /api/privacy/stats
func GetPrivacyStats(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}
	c.JSON(http.StatusOK, engine.GetPrivacyStats())
}

// GetPrivacyPolicy handles GET /api/privacy/policy
func GetPrivacyPolicy(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}
	c.JSON(http.StatusOK, engine.Policy())
}

// GetAuditLog handles GET /api/privacy/audit-log
func GetAuditLog(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}

	vehicleID := c.Query("vehicleId")
	operation := c.Query("operation")
	limit := parseLimit(c, 100, 1000)

	entries := engine.GetAuditLog(vehicleID, operation, limit)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetConsent handles GET /api/privacy/consent/:vehicleId
func GetConsent(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}

	vehicleID := c.Param("vehicleId")
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id":     vehicleID,
		"consent_status": engine.GetConsent(vehicleID),
	})
}

// SetConsent handles PUT /api/privacy/consent/:vehicleId
func SetConsent(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}

	var req struct {
		Status models.ConsentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid consent payload: " + err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Unknown consent status: " + string(req.Status)})
		return
	}

	vehicleID := c.Param("vehicleId")
	engine.SetConsent(vehicleID, req.Status)
	log.Printf("🔒 Consent for %s set to %s", vehicleID, req.Status)

	c.JSON(http.StatusOK, gin.H{
		"vehicle_id":     vehicleID,
		"consent_status": req.Status,
	})
}

// GetDataSubjectReport handles GET /api/privacy/dsar/:vehicleId -
// everything the system holds about one vehicle, for GDPR access
// requests.
func GetDataSubjectReport(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}

	c.JSON(http.StatusOK, engine.GenerateDataSubjectReport(c.Param("vehicleId")))
}

// EnforceRetention handles POST /api/privacy/retention/enforce
func EnforceRetention(c *gin.Context) {
	engine := privacyEngine(c)
	if engine == nil {
		return
	}

	expired := engine.EnforceRetentionPolicy()
	log.Printf("🔒 Retention sweep flagged %d vehicles", len(expired))

	c.JSON(http.StatusOK, gin.H{
		"expired_vehicles": expired,
		"count":            len(expired),
	})
}
