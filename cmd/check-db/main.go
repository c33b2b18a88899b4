// Package main is a diagnostic tool that connects with the server's configuration,
// prints row counts for the fleet tables and lists the most recent audit records.
// It exits non-zero on any failure so it can gate a deployment step.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("=== TABLES ===")
	for _, table := range []string{"users", "vehicles", "documents", "alerts", "audit_logs"} {
		var n int
		// #nosec G202 -- table names come from the fixed list above
		if err := database.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			log.Fatalf("Count %s failed: %v", table, err)
		}
		fmt.Printf("%-12s %d\n", table, n)
	}

	fmt.Println("\n=== LATEST AUDIT RECORDS ===")
	logs, _, err := repositories.NewAuditRepository(database).ListAuditLogs(ctx, repositories.AuditFilters{}, 10, 0)
	if err != nil {
		log.Fatalf("Audit query failed: %v", err)
	}
	if len(logs) == 0 {
		fmt.Println("No audit records found!")
	}
	for _, l := range logs {
		actor := "Anonymous"
		if l.ActorName != nil {
			actor = *l.ActorName
		}
		outcome := "ok"
		if !l.Outcome {
			outcome = "failed"
		}
		fmt.Printf("%s  %-20s %-8s %-24s %s\n", l.CreatedAt.Format(time.RFC3339), l.Action, l.EntityType, actor, outcome)
	}
}
