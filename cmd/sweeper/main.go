// Command sweeper expires abandoned carts and returns their holds to the
// ledger. It runs alongside the API server or as a one-shot job.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-ticketing-engine/internal/cache"
	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/config"
	"event-ticketing-engine/internal/database"
	"event-ticketing-engine/internal/events"
	"event-ticketing-engine/internal/logging"
	"event-ticketing-engine/internal/repositories"
	"event-ticketing-engine/internal/services"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var (
		interval  time.Duration
		ttl       time.Duration
		batchSize int
		once      bool
	)
	flagSet := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	flagSet.DurationVar(&interval, "interval", cfg.Cart.SweepInterval, "time between sweeps")
	flagSet.DurationVar(&ttl, "ttl", cfg.Cart.TTL, "inactivity after which an open cart expires")
	flagSet.IntVar(&batchSize, "batch-size", cfg.Cart.SweepBatchSize, "carts listed per batch")
	flagSet.BoolVar(&once, "once", false, "run a single sweep and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if ttl <= 0 || interval <= 0 {
		log.Fatal("--ttl and --interval must be positive")
	}

	logger, err := logging.New(cfg.Server.Env, "cart-sweeper")
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var publisher services.EventPublisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(events.NewWriterProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		defer kafkaPublisher.Close()
		async := events.NewAsyncPublisher(kafkaPublisher, cfg.Kafka.QueueSize, cfg.Kafka.PublishTimeout, logger)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := async.Shutdown(flushCtx); err != nil {
				logger.Warn("failed to flush queued events", zap.Error(err))
			}
		}()
		publisher = async
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
	}
	availability := cache.NewAvailabilityCache(redisClient, cfg.Redis.AvailabilityTTL, logger)
	defer availability.Close()

	clk := clock.Real()
	store := repositories.NewStore(db.DB, cfg.Database.LockTimeout)
	sweeper := services.NewSweeper(store, clk, publisher, logger, batchSize).WithAvailability(availability)

	if once {
		result, err := sweeper.SweepExpired(ctx, ttl, clk.Now())
		fmt.Printf("examined=%d expired=%d skipped=%d failed=%d\n", result.Examined, result.Expired, result.Skipped, result.Failed)
		if err != nil {
			logger.Fatal("sweep failed", zap.Error(err))
		}
		return
	}

	logger.Info("cart sweeper started", zap.Duration("interval", interval), zap.Duration("ttl", ttl))
	if err := sweeper.Run(ctx, interval, ttl); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("cart sweeper stopped", zap.Error(err))
	}
	logger.Info("cart sweeper stopped")
}
