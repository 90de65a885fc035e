package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/fleetgate/backend/models"
)

// TelemetryPublisher is the piece of the message transport the
// simulator needs. The embedded NATS wrapper satisfies it.
type TelemetryPublisher interface {
	Publish(subject string, data []byte) error
}

type simRoute struct {
	id        string
	waypoints [][2]float64 // (lat, lng)
}

var tokyoRoutes = []simRoute{
	{"route-shibuya-shinjuku", [][2]float64{{35.6580, 139.7016}, {35.6619, 139.6982}, {35.6684, 139.6993}, {35.6896, 139.7006}}},
	{"route-tokyo-ginza", [][2]float64{{35.6812, 139.7671}, {35.6762, 139.7649}, {35.6717, 139.7649}, {35.6654, 139.7621}}},
	{"route-ikebukuro-loop", [][2]float64{{35.7295, 139.7109}, {35.7350, 139.7150}, {35.7320, 139.7200}, {35.7250, 139.7150}}},
	{"route-odaiba", [][2]float64{{35.6267, 139.7750}, {35.6250, 139.7800}, {35.6220, 139.7850}, {35.6267, 139.7750}}},
	{"route-roppongi-azabu", [][2]float64{{35.6628, 139.7315}, {35.6580, 139.7350}, {35.6520, 139.7380}, {35.6480, 139.7300}}},
	{"route-ueno-asakusa", [][2]float64{{35.7141, 139.7774}, {35.7150, 139.7850}, {35.7100, 139.7950}, {35.7117, 139.7966}}},
	{"route-akihabara", [][2]float64{{35.6984, 139.7731}, {35.7010, 139.7750}, {35.7000, 139.7780}, {35.6960, 139.7760}}},
	{"route-shinagawa", [][2]float64{{35.6284, 139.7387}, {35.6250, 139.7400}, {35.6220, 139.7450}, {35.6284, 139.7387}}},
}

type simVehicleState struct {
	vehicleID     string
	routeIndex    int
	waypointIndex int
	progress      float64
	speedKMH      float64
	occupancy     int
	heading       float64
	consentStatus models.ConsentStatus
}

// FleetSimulator generates a steady stream of plausible telemetry for
// a simulated fleet moving along Tokyo routes and publishes it to the
// message transport for the consumer to pick up.
type FleetSimulator struct {
	publisher TelemetryPublisher
	subject   string
	interval  time.Duration
	vehicles  []*simVehicleState
	rng       *rand.Rand
}

// NewFleetSimulator creates a simulator for vehicleCount vehicles
// publishing one batch per interval.
func NewFleetSimulator(publisher TelemetryPublisher, subject string, vehicleCount int, interval time.Duration) *FleetSimulator {
	s := &FleetSimulator{
		publisher: publisher,
		subject:   subject,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := 0; i < vehicleCount; i++ {
		consent := models.ConsentGranted
		if s.rng.Float64() <= 0.02 {
			consent = models.ConsentPending
		}
		s.vehicles = append(s.vehicles, &simVehicleState{
			vehicleID:     fmt.Sprintf("vehicle-%03d", i+1),
			routeIndex:    s.rng.Intn(len(tokyoRoutes)),
			progress:      s.rng.Float64(),
			speedKMH:      20 + s.rng.Float64()*30,
			occupancy:     s.rng.Intn(9),
			heading:       s.rng.Float64() * 360,
			consentStatus: consent,
		})
	}
	return s
}

// GenerateBatch advances every vehicle one step and returns its
// telemetry.
func (s *FleetSimulator) GenerateBatch() []models.VehicleTelemetry {
	batch := make([]models.VehicleTelemetry, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		batch = append(batch, s.generate(v))
	}
	return batch
}

func (s *FleetSimulator) generate(v *simVehicleState) models.VehicleTelemetry {
	route := tokyoRoutes[v.routeIndex]
	waypoints := route.waypoints

	v.progress += (v.speedKMH / 3600) * 10
	if v.progress >= 1.0 {
		v.progress = 0.0
		v.waypointIndex = (v.waypointIndex + 1) % (len(waypoints) - 1)
		if s.rng.Float64() < 0.1 {
			v.routeIndex = s.rng.Intn(len(tokyoRoutes))
			v.waypointIndex = 0
			route = tokyoRoutes[v.routeIndex]
			waypoints = route.waypoints
		}
	}

	current := waypoints[v.waypointIndex]
	nextIdx := v.waypointIndex + 1
	if nextIdx >= len(waypoints) {
		nextIdx = len(waypoints) - 1
	}
	next := waypoints[nextIdx]

	lat := current[0] + (next[0]-current[0])*v.progress
	lng := current[1] + (next[1]-current[1])*v.progress

	if s.rng.Float64() < 0.05 {
		v.occupancy += s.rng.Intn(5) - 2
		if v.occupancy < 0 {
			v.occupancy = 0
		}
		if v.occupancy > 8 {
			v.occupancy = 8
		}
	}

	v.speedKMH += s.rng.Float64()*6 - 3
	if v.speedKMH < 10 {
		v.speedKMH = 10
	}
	if v.speedKMH > 60 {
		v.speedKMH = 60
	}

	v.heading = math.Mod(math.Atan2(next[1]-current[1], next[0]-current[0])*180/math.Pi+360, 360)

	now := time.Now().UTC()
	frame := fmt.Sprintf("%s:%s:%d", v.vehicleID, now.Format(time.RFC3339Nano), v.occupancy)
	sum := sha256.Sum256([]byte(frame))

	speed := v.speedKMH
	heading := v.heading
	return models.VehicleTelemetry{
		VehicleID:          v.vehicleID,
		Timestamp:          now,
		OccupancyCount:     v.occupancy,
		InferenceLatencyMS: 9.6 + s.rng.Float64()*5 - 2,
		Location:           models.GPSLocation{Latitude: lat, Longitude: lng},
		FrameHash:          hex.EncodeToString(sum[:]),
		ConsentStatus:      v.consentStatus,
		RouteID:            route.id,
		SpeedKMH:           &speed,
		HeadingDegrees:     &heading,
	}
}

// Run publishes one batch per interval until the context is canceled.
func (s *FleetSimulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("🎮 Simulator started: %d vehicles, %s interval", len(s.vehicles), s.interval)

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			log.Println("🎮 Simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			cycle++
			for _, t := range s.GenerateBatch() {
				data, err := json.Marshal(t)
				if err != nil {
					continue
				}
				if err := s.publisher.Publish(s.subject, data); err != nil {
					log.Printf("⚠️ Failed to publish telemetry for %s: %v", t.VehicleID, err)
				}
			}
			if cycle%10 == 0 {
				log.Printf("📊 Simulator cycle %d: %d vehicles published", cycle, len(s.vehicles))
			}
		}
	}
}
