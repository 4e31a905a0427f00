package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"event-ticketing-engine/internal/config"
	"event-ticketing-engine/internal/database"
	"event-ticketing-engine/internal/logging"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var (
		statusFlag = pflag.Bool("status", false, "Show migration status")
		upFlag     = pflag.Bool("up", false, "Run pending migrations")
	)
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Env, "migrate")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Connect to database
	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	switch {
	case *statusFlag:
		states, err := db.MigrationStatus(ctx)
		if err != nil {
			logger.Fatal("failed to get migration status", zap.Error(err))
		}
		for _, state := range states {
			mark := "pending"
			if state.Applied {
				mark = "applied"
			}
			fmt.Printf("%03d  %-40s %s\n", state.Version, state.Name, mark)
		}
	case *upFlag:
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		fmt.Println("All migrations completed successfully!")
	default:
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/migrate --status   # Show migration status")
		fmt.Println("  go run ./cmd/migrate --up       # Run pending migrations")
		os.Exit(1)
	}
}
