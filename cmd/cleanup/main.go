package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/models"
)

func main() {
	olderThanDays := flag.Int("older-than", 30, "delete alerts older than this many days (0 = all)")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	fmt.Println("Start cleanup...")

	if *olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -*olderThanDays)
		result := database.DB.Where("created_at < ?", cutoff).Delete(&models.Alert{})
		if result.Error != nil {
			log.Fatalf("Failed to delete old alerts: %v", result.Error)
		}
		fmt.Printf("✅ Deleted %d alerts older than %d days\n", result.RowsAffected, *olderThanDays)
	} else {
		result := database.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Alert{})
		if result.Error != nil {
			log.Fatalf("Failed to delete alerts: %v", result.Error)
		}
		fmt.Printf("✅ Deleted all %d alerts\n", result.RowsAffected)
	}

	fmt.Println("Cleanup finished successfully")
}
