// Command seed-inventory provisions ticket types, pricing tiers and fee
// schedules from a YAML file. Re-running a file skips ticket types that
// already exist.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/config"
	"event-ticketing-engine/internal/database"
	"event-ticketing-engine/internal/logging"
	"event-ticketing-engine/internal/repositories"
	"event-ticketing-engine/internal/seed"
	"event-ticketing-engine/internal/services"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var (
		file    string
		dryRun  bool
		migrate bool
	)
	flagSet := pflag.NewFlagSet("seed-inventory", pflag.ContinueOnError)
	flagSet.StringVarP(&file, "file", "f", "inventory.yaml", "inventory file to load")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate the file without touching the database")
	flagSet.BoolVar(&migrate, "migrate", false, "run pending migrations first")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	f, err := os.Open(file)
	if err != nil {
		log.Fatalf("Failed to open inventory file: %v", err)
	}
	inv, err := seed.Load(f)
	f.Close()
	if err != nil {
		log.Fatalf("Invalid inventory file: %v", err)
	}

	fmt.Printf("Loaded %d fee schedules and %d ticket types from %s\n", len(inv.FeeSchedules), len(inv.TicketTypes), file)
	if dryRun {
		for _, spec := range inv.TicketTypes {
			fmt.Printf("  %s  %-30s capacity %d, %d tiers\n", spec.ID, spec.Name, spec.Capacity, len(spec.Tiers))
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.New(cfg.Server.Env, "seed-inventory")
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if migrate {
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store := repositories.NewStore(db.DB, cfg.Database.LockTimeout)
	ledger := services.NewInventoryLedger(store, clock.Real(), logger)

	result, err := seed.Apply(ctx, store, ledger, inv, logger)
	if err != nil {
		logger.Fatal("failed to seed inventory", zap.Error(err))
	}

	fmt.Printf("Saved %d fee schedules, provisioned %d ticket types, skipped %d existing\n",
		result.FeeSchedules, result.Provisioned, result.Skipped)
}
