package main

import (
	"log"

	"ai-chat-relay-be/internal/config"
	"ai-chat-relay-be/internal/model"
	"ai-chat-relay-be/pkg/database"
)

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.Verbose)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	log.Println("Step 1: Setting up Extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to enable pgcrypto: %v. Continuing...", err)
	}

	// 4. Vector extension and tables
	log.Println("Step 2: Running AutoMigrate for document windows...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Error: migration failed: %v", err)
	}

	// 5. Post-Migration: Indexes
	log.Println("Step 3: Creating Indexes...")
	postMigrationSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_document_windows_generation_position ON document_windows (generation, position);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	// 6. Report leftover generations (a crashed relay can leave one behind)
	var generations []struct {
		Generation string
		Windows    int64
	}
	if err := db.Model(&model.DocumentWindow{}).
		Select("generation, count(*) as windows").
		Group("generation").
		Scan(&generations).Error; err != nil {
		log.Printf("Warn: Failed to count generations: %v", err)
	}
	for _, g := range generations {
		log.Printf("Generation %s: %d windows", g.Generation, g.Windows)
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
