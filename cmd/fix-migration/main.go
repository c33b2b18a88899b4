// Package main clears a dirty flag left in schema_migrations when a migration was
// interrupted, so the server can retry it on its next start instead of refusing to
// boot with "Dirty database version".
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	// Forcing the recorded version keeps it and clears the dirty flag.
	if err := db.ForceVersion(database, int(version)); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
