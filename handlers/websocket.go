package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fleetgate/backend/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// HandleTelemetryWS handles WebSocket connections for the live
// telemetry feed. Clients receive an initial fleet snapshot followed
// by one message per accepted event.
func HandleTelemetryWS(c *gin.Context) {
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry hub not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := services.NewWSClient(conn, c.ClientIP(), func(cl *services.WSClient) {
		hub.UnregisterClient(cl)
		log.Printf("🔌 Telemetry client disconnected: %s", cl.RemoteAddr())
	})

	vehicles := hub.GetAllVehicles()
	initial, err := json.Marshal(gin.H{
		"type":     "initial_state",
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
	if err == nil {
		client.Send(initial)
	}

	hub.RegisterClient(client)
	log.Printf("🔌 Telemetry client connected: %s (total: %d)", c.ClientIP(), hub.ClientCount())

	go client.WritePump()
	go client.ReadPump()
}

// HandleSummaryWS streams an aggregated fleet summary on a fixed
// interval; lighter-weight than the full telemetry feed.
func HandleSummaryWS(c *gin.Context) {
	if summaryFeed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Summary feed not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := services.NewWSClient(conn, c.ClientIP(), func(cl *services.WSClient) {
		summaryFeed.Unregister(cl)
		log.Printf("📊 Summary client disconnected: %s", cl.RemoteAddr())
	})
	summaryFeed.Register(client)
	log.Printf("📊 Summary client connected: %s", c.ClientIP())

	go client.WritePump()
	go client.ReadPump()
}

// HandleAlertsWS streams geofence alerts as they are emitted.
func HandleAlertsWS(c *gin.Context) {
	if alertFeed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert feed not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := services.NewWSClient(conn, c.ClientIP(), func(cl *services.WSClient) {
		alertFeed.Unregister(cl)
		log.Printf("🔔 Alert client disconnected: %s", cl.RemoteAddr())
	})
	alertFeed.Register(client)
	log.Printf("🔔 Alert client connected: %s", c.ClientIP())

	go client.WritePump()
	go client.ReadPump()
}
