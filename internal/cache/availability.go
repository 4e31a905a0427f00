// Package cache holds short-lived copies of ledger reads for display.
// The ledger stays authoritative; nothing here is consulted when
// reserving.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "availability:"

// AvailabilityCache caches remaining counts per ticket type in Redis. A
// cache built without a client is disabled: every Get misses and writes
// are dropped.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewAvailabilityCache creates a cache. client may be nil.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

// NewClient connects to the Redis server at url and pings it
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Enabled reports whether a Redis client is configured
func (c *AvailabilityCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached remaining count. Redis errors count as misses.
func (c *AvailabilityCache) Get(ctx context.Context, ticketTypeID uuid.UUID) (int, bool) {
	if !c.Enabled() {
		return 0, false
	}

	value, err := c.client.Get(ctx, key(ticketTypeID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", zap.String("ticket_type_id", ticketTypeID.String()), zap.Error(err))
		}
		return 0, false
	}

	remaining, err := strconv.Atoi(value)
	if err != nil {
		c.logger.Warn("availability cache holds a non-numeric value", zap.String("ticket_type_id", ticketTypeID.String()), zap.String("value", value))
		return 0, false
	}
	return remaining, true
}

// Set stores remaining for the configured TTL
func (c *AvailabilityCache) Set(ctx context.Context, ticketTypeID uuid.UUID, remaining int) {
	if !c.Enabled() {
		return
	}

	if err := c.client.Set(ctx, key(ticketTypeID), remaining, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", zap.String("ticket_type_id", ticketTypeID.String()), zap.Error(err))
	}
}

// Invalidate drops the cached counts of the given ticket types
func (c *AvailabilityCache) Invalidate(ctx context.Context, ticketTypeIDs ...uuid.UUID) {
	if !c.Enabled() || len(ticketTypeIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(ticketTypeIDs))
	for _, id := range ticketTypeIDs {
		keys = append(keys, key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// Close releases the Redis connection pool
func (c *AvailabilityCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func key(ticketTypeID uuid.UUID) string {
	return keyPrefix + ticketTypeID.String()
}
