package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/fleetgate/backend/config"
	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/handlers"
	"github.com/fleetgate/backend/natsserver"
	"github.com/fleetgate/backend/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	defer database.Close()

	// Start embedded NATS server for telemetry transport
	natsServer, err := natsserver.New(natsserver.Config{Port: cfg.NATSPort})
	if err != nil {
		log.Fatalf("❌ Failed to start NATS server: %v", err)
	}
	defer natsServer.Shutdown()
	log.Printf("📡 Telemetry transport ready at %s", natsServer.Address())

	// Privacy engine
	var privacy *services.PrivacyEngine
	if cfg.PrivacyEnabled {
		policy := services.DefaultPrivacyPolicy()
		policy.RetentionDays = cfg.RetentionDays
		policy.AnonymizationLevel = cfg.AnonymizationLevel
		privacy = services.NewPrivacyEngine(policy)
		log.Printf("🔒 Privacy engine enabled (level=%s, retention=%dd)", policy.AnonymizationLevel, policy.RetentionDays)
	} else {
		log.Println("⚠️ Privacy engine disabled")
	}

	// Persistence stores
	geofenceStore := database.NewGeofenceStore(database.DB)
	alertStore := database.NewAlertStore(database.DB)

	// Geofence monitor, with alerts fanned out to WebSocket clients
	monitor := services.NewGeofenceMonitor(geofenceStore, alertStore, cfg.AlertCooldown)
	alertFeed := services.NewAlertBroadcaster()
	monitor.OnAlert(alertFeed.Broadcast)

	// Telemetry hub
	hub := services.NewTelemetryHub(services.HubConfig{
		InactiveThreshold: cfg.InactiveThreshold,
		HistorySize:       cfg.HistorySize,
		Privacy:           privacy,
		Geofence:          monitor,
	})
	log.Printf("📊 Telemetry hub initialized (history=%d)", cfg.HistorySize)

	// Consume telemetry published on the internal NATS subject
	consumer := services.NewTelemetryConsumer(natsServer, hub, cfg.TelemetrySubject, cfg.ConsumerQueue)
	if err := consumer.Start(); err != nil {
		log.Fatalf("❌ Failed to start telemetry consumer: %v", err)
	}
	defer consumer.Stop()
	log.Printf("📡 Telemetry consumer subscribed to %q", cfg.TelemetrySubject)

	summaryFeed := services.NewSummaryFeed(hub, cfg.SummaryInterval)

	handlers.SetHub(hub)
	handlers.SetMonitor(monitor)
	handlers.SetAlertFeed(alertFeed)
	handlers.SetSummaryFeed(summaryFeed)
	handlers.SetStores(geofenceStore, alertStore)

	// Setup Gin router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"nats":      natsServer.GetStats(),
		})
	})

	// WebSocket routes (outside /api group)
	router.GET("/ws/telemetry", handlers.HandleTelemetryWS)
	router.GET("/ws/summary", handlers.HandleSummaryWS)
	router.GET("/ws/alerts", handlers.HandleAlertsWS)

	// API Routes
	api := router.Group("/api")
	{
		vehicles := api.Group("/vehicles")
		{
			vehicles.GET("", handlers.GetVehicles)
			vehicles.GET("/:vehicleId", handlers.GetVehicle)
			vehicles.GET("/:vehicleId/history", handlers.GetVehicleHistory)
		}

		fleet := api.Group("/fleet")
		{
			fleet.GET("/summary", handlers.GetFleetSummary)
			fleet.GET("/stats", handlers.GetFleetStats)
		}

		api.GET("/analytics/history", handlers.GetRecentHistory)

		telemetry := api.Group("/telemetry")
		{
			telemetry.POST("/ingest", handlers.PostTelemetry)
			telemetry.POST("/ingest/batch", handlers.PostTelemetryBatch)
		}

		geofences := api.Group("/geofences")
		{
			geofences.GET("", handlers.GetGeofences)
			geofences.POST("", handlers.CreateGeofence)
			geofences.GET("/:id", handlers.GetGeofence)
			geofences.PUT("/:id", handlers.UpdateGeofence)
			geofences.DELETE("/:id", handlers.DeleteGeofence)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", handlers.GetAlerts)
			alerts.PUT("/:id/read", handlers.MarkAlertRead)
		}

		privacyAPI := api.Group("/privacy")
		{
			privacyAPI.GET("/stats", handlers.GetPrivacyStats)
			privacyAPI.GET("/policy", handlers.GetPrivacyPolicy)
			privacyAPI.GET("/audit-log", handlers.GetAuditLog)
			privacyAPI.GET("/consent/:vehicleId", handlers.GetConsent)
			privacyAPI.PUT("/consent/:vehicleId", handlers.SetConsent)
			privacyAPI.GET("/dsar/:vehicleId", handlers.GetDataSubjectReport)
			privacyAPI.POST("/retention/enforce", handlers.EnforceRetention)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Background feeds
	g.Go(func() error { return summaryFeed.Run(ctx) })

	if cfg.SimulatorEnabled {
		simulator := services.NewFleetSimulator(natsServer, cfg.TelemetrySubject, cfg.SimulatorVehicleCount, cfg.SimulatorInterval)
		g.Go(func() error { return simulator.Run(ctx) })
		log.Printf("🎮 Demo simulator running with %d vehicles", cfg.SimulatorVehicleCount)
	}

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	g.Go(func() error {
		log.Printf("🚀 Server starting on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ Server exited: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
