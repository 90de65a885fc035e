package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/models"
)

type seedZone struct {
	name        string
	description string
	// Outer ring vertices as [lng, lat], matching GeoJSON order.
	ring [][]float64
}

// Rough bounding boxes around the Tokyo districts the demo routes
// pass through.
var seedZones = []seedZone{
	{
		name:        "Shibuya Core",
		description: "Central Shibuya around the scramble crossing",
		ring: [][]float64{
			{139.694, 35.655}, {139.708, 35.655},
			{139.708, 35.663}, {139.694, 35.663},
			{139.694, 35.655},
		},
	},
	{
		name:        "Shinjuku Station Area",
		description: "Shinjuku station and the west-side terminals",
		ring: [][]float64{
			{139.693, 35.685}, {139.708, 35.685},
			{139.708, 35.696}, {139.693, 35.696},
			{139.693, 35.685},
		},
	},
	{
		name:        "Ginza District",
		description: "Ginza shopping district depot zone",
		ring: [][]float64{
			{139.760, 35.666}, {139.773, 35.666},
			{139.773, 35.675}, {139.760, 35.675},
			{139.760, 35.666},
		},
	},
	{
		name:        "Ueno Park",
		description: "Ueno park loop, low-speed zone",
		ring: [][]float64{
			{139.768, 35.708}, {139.780, 35.708},
			{139.780, 35.718}, {139.768, 35.718},
			{139.768, 35.708},
		},
	},
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	fmt.Println("🌱 Seeding demo geofences...")

	store := database.NewGeofenceStore(database.DB)
	ctx := context.Background()

	existing, err := store.List(ctx, nil)
	if err != nil {
		log.Fatalf("❌ Failed to list geofences: %v", err)
	}
	byName := make(map[string]bool, len(existing))
	for _, gf := range existing {
		byName[gf.Name] = true
	}

	created := 0
	for _, zone := range seedZones {
		if byName[zone.name] {
			fmt.Printf("⏭️  %s already exists, skipping\n", zone.name)
			continue
		}

		description := zone.description
		geofence := models.Geofence{
			Name:        zone.name,
			Description: &description,
			Polygon: models.GeoPolygon{
				Type:        "Polygon",
				Coordinates: [][][]float64{zone.ring},
			},
			AlertOnEnter: true,
			AlertOnExit:  true,
			IsActive:     true,
		}
		if err := store.Create(ctx, &geofence); err != nil {
			log.Fatalf("❌ Failed to create geofence %s: %v", zone.name, err)
		}
		fmt.Printf("✅ Created geofence %s (id=%d)\n", geofence.Name, geofence.ID)
		created++
	}

	fmt.Printf("🌱 Seed finished: %d created, %d skipped\n", created, len(seedZones)-created)
}
