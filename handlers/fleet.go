package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetFleetSummary handles GET /api/fleet/summary
func GetFleetSummary(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	c.JSON(http.StatusOK, hub.GetFleetSummary())
}

// GetFleetStats handles GET /api/fleet/stats - operational counters
// for the hub and the geofence monitor.
func GetFleetStats(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	resp := gin.H{"hub": hub.Stats()}
	if monitor != nil {
		resp["geofence"] = monitor.Stats()
	}
	if alertFeed != nil {
		resp["alert_clients"] = alertFeed.ClientCount()
	}
	if summaryFeed != nil {
		resp["summary_clients"] = summaryFeed.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// GetRecentHistory handles GET /api/analytics/history - newest
// telemetry across the whole fleet.
func GetRecentHistory(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	limit := parseLimit(c, 100, 1000)
	history := hub.GetRecentHistory(limit)
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}
