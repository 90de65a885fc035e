// Package config loads application settings from environment
// variables with sensible development defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fleetgate/backend/models"
)

// Config holds all runtime settings.
type Config struct {
	HTTPPort string
	NATSPort int

	TelemetrySubject string
	ConsumerQueue    string

	SimulatorEnabled      bool
	SimulatorVehicleCount int
	SimulatorInterval     time.Duration

	InactiveThreshold time.Duration
	HistorySize       int
	AlertCooldown     time.Duration
	SummaryInterval   time.Duration

	PrivacyEnabled     bool
	RetentionDays      int
	AnonymizationLevel models.AnonymizationLevel
}

// Load reads settings from the environment.
func Load() *Config {
	return &Config{
		HTTPPort: getEnv("PORT", "8000"),
		NATSPort: getEnvInt("NATS_PORT", 4233),

		TelemetrySubject: getEnv("TELEMETRY_SUBJECT", "telemetry.events"),
		ConsumerQueue:    getEnv("CONSUMER_QUEUE", "fleet-backend"),

		SimulatorEnabled:      getEnvBool("SIMULATOR_DEMO_MODE", true),
		SimulatorVehicleCount: getEnvInt("SIMULATOR_VEHICLE_COUNT", 50),
		SimulatorInterval:     time.Duration(getEnvInt("SIMULATOR_UPDATE_INTERVAL_MS", 1000)) * time.Millisecond,

		InactiveThreshold: time.Duration(getEnvInt("INACTIVE_THRESHOLD_SECONDS", 30)) * time.Second,
		HistorySize:       getEnvInt("HISTORY_MAX_SIZE", 10000),
		AlertCooldown:     time.Duration(getEnvInt("ALERT_COOLDOWN_SECONDS", 300)) * time.Second,
		SummaryInterval:   time.Duration(getEnvInt("SUMMARY_INTERVAL_MS", 1000)) * time.Millisecond,

		PrivacyEnabled:     getEnvBool("PRIVACY_ENABLED", true),
		RetentionDays:      getEnvInt("RETENTION_DAYS", 30),
		AnonymizationLevel: anonymizationLevel(getEnv("ANONYMIZATION_LEVEL", "partial")),
	}
}

func anonymizationLevel(s string) models.AnonymizationLevel {
	level := models.AnonymizationLevel(s)
	if !level.Valid() {
		return models.AnonymizationPartial
	}
	return level
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
