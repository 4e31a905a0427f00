package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-ticketing-engine/internal/cache"
	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/config"
	"event-ticketing-engine/internal/database"
	"event-ticketing-engine/internal/events"
	"event-ticketing-engine/internal/handlers"
	"event-ticketing-engine/internal/logging"
	"event-ticketing-engine/internal/middleware"
	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/repositories"
	"event-ticketing-engine/internal/server"
	"event-ticketing-engine/internal/services"
	"event-ticketing-engine/internal/telemetry"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.New(cfg.Server.Env, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer closePublisher()

	availability, err := newAvailabilityCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer availability.Close()

	store := repositories.NewStore(db.DB, cfg.Database.LockTimeout)
	clk := clock.Real()

	ledger := services.NewInventoryLedger(store, clk, logger)
	pricing := services.NewPricingResolver(store, defaultFees(cfg.Fees), logger)
	carts := services.NewCartService(store, pricing, clk, publisher, logger)
	payments := services.NewPaymentService(store, clk, publisher, logger)
	sweeper := services.NewSweeper(store, clk, publisher, logger, cfg.Cart.SweepBatchSize).WithAvailability(availability)

	limiter := middleware.NewRateLimiter(60, time.Minute, clk)
	go limiter.Cleanup(ctx, time.Minute)

	go func() {
		if err := sweeper.Run(ctx, cfg.Cart.SweepInterval, cfg.Cart.TTL); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("cart sweeper stopped", zap.Error(err))
		}
	}()

	router := server.NewRouter(server.Handlers{
		Carts:       handlers.NewCartHandler(carts, availability, logger),
		Payments:    handlers.NewPaymentHandler(payments, logger),
		TicketTypes: handlers.NewTicketTypeHandler(ledger, availability, logger),
		Health:      handlers.Health(db, cfg.Telemetry.ServiceName),
	}, limiter, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPublisher returns the event sink the services publish to. Kafka
// writes happen on a background worker so a slow broker never holds up a
// payment or a cancel.
func newPublisher(cfg config.KafkaConfig, logger *zap.Logger) (services.EventPublisher, func()) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured, domain events are dropped")
		return events.NopPublisher{}, func() {}
	}

	kafkaPublisher := events.NewKafkaPublisher(events.NewWriterProducer(cfg.Brokers, cfg.Topic), logger)
	publisher := events.NewAsyncPublisher(kafkaPublisher, cfg.QueueSize, cfg.PublishTimeout, logger)
	return publisher, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := publisher.Shutdown(ctx); err != nil {
			logger.Warn("failed to flush queued events", zap.Error(err))
		}
		if err := kafkaPublisher.Close(); err != nil {
			logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
}

func newAvailabilityCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*cache.AvailabilityCache, error) {
	if cfg.URL == "" {
		return cache.NewAvailabilityCache(nil, cfg.AvailabilityTTL, logger), nil
	}

	client, err := cache.NewClient(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return cache.NewAvailabilityCache(client, cfg.AvailabilityTTL, logger), nil
}

func defaultFees(cfg config.FeeConfig) *models.FeeSchedule {
	if cfg.FlatCents == 0 && cfg.PercentBasisPoints == 0 {
		return nil
	}
	return &models.FeeSchedule{
		Name:               "default",
		FlatCents:          cfg.FlatCents,
		PercentBasisPoints: cfg.PercentBasisPoints,
		Base:               models.FeeBase(cfg.Base),
		Compound:           cfg.Compound,
	}
}
