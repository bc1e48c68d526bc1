package main

import (
	"log"

	"ai-factcheck-be/internal/config"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/pkg/database"
)

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDB(database.GormConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.Connection,
	})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Extensions (Postgres only)
	if cfg.Database.Driver != database.DriverSQLite {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
			log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
		}
	}

	// 4. AutoMigrate All Models
	log.Printf("Running AutoMigrate for %d tables...", len(model.All()))
	if err := model.AutoMigrate(db); err != nil {
		log.Fatal("Error: AutoMigrate failed:", err)
	}

	log.Println("Migration completed successfully")
}
