package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cart      CartConfig
	Fees      FeeConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	URL      string // Full database URL
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
	LockTimeout  time.Duration // bounds waits on ledger and order row locks
}

type CartConfig struct {
	TTL            time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
}

// FeeConfig is the default fee schedule for ticket types without their own
type FeeConfig struct {
	FlatCents          int64
	PercentBasisPoints int64
	Base               string // "list" or "discounted"
	Compound           bool
}

type KafkaConfig struct {
	Brokers        []string // empty disables event publishing
	Topic          string
	QueueSize      int           // events buffered ahead of the broker
	PublishTimeout time.Duration // per delivery
}

type RedisConfig struct {
	URL             string // empty disables the availability cache
	AvailabilityTTL time.Duration
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string // empty disables trace export
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	database := parseDatabaseConfig()
	database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	database.LockTimeout = getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second)

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
			Env:  getEnv("ENV", "development"),
		},
		Database: database,
		Cart: CartConfig{
			TTL:            getEnvAsDuration("CART_TTL", 30*time.Minute),
			SweepInterval:  getEnvAsDuration("CART_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize: getEnvAsInt("CART_SWEEP_BATCH_SIZE", 100),
		},
		Fees: FeeConfig{
			FlatCents:          int64(getEnvAsInt("FEE_FLAT_CENTS", 0)),
			PercentBasisPoints: int64(getEnvAsInt("FEE_PERCENT_BPS", 0)),
			Base:               getEnv("FEE_BASE", "discounted"),
			Compound:           getEnvAsBool("FEE_COMPOUND", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:          getEnv("KAFKA_TOPIC", "ticketing.orders"),
			QueueSize:      getEnvAsInt("KAFKA_QUEUE_SIZE", 1024),
			PublishTimeout: getEnvAsDuration("KAFKA_PUBLISH_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			AvailabilityTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "event-ticketing-engine"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Cart.TTL <= 0 {
		return fmt.Errorf("CART_TTL must be positive, got %s", c.Cart.TTL)
	}
	if c.Cart.SweepInterval <= 0 {
		return fmt.Errorf("CART_SWEEP_INTERVAL must be positive, got %s", c.Cart.SweepInterval)
	}
	if c.Fees.Base != "list" && c.Fees.Base != "discounted" {
		return fmt.Errorf("FEE_BASE must be list or discounted, got %q", c.Fees.Base)
	}
	if c.Fees.FlatCents < 0 || c.Fees.PercentBasisPoints < 0 || c.Fees.PercentBasisPoints > 10000 {
		return fmt.Errorf("default fee schedule out of range: flat %d, percent %d bp", c.Fees.FlatCents, c.Fees.PercentBasisPoints)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func parseDatabaseConfig() DatabaseConfig {
	// Check if DATABASE_URL is provided
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL != "" {
		return parseDatabaseURL(databaseURL)
	}

	// Fall back to individual environment variables
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "event_ticketing"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func parseDatabaseURL(databaseURL string) DatabaseConfig {
	config := DatabaseConfig{
		URL: databaseURL,
	}

	// Parse the URL
	u, err := url.Parse(databaseURL)
	if err != nil {
		// If parsing fails, return the URL as-is
		return config
	}

	// Extract components
	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	} else {
		config.Port = 5432 // Default PostgreSQL port
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	// Remove leading slash from path to get database name
	config.DBName = strings.TrimPrefix(u.Path, "/")

	// Parse query parameters for SSL mode
	query := u.Query()
	config.SSLMode = query.Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
