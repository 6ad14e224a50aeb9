package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	DBDriver      string
	SQLitePath    string
	Postgres      PostgresConfig
	MigrationsDir string

	RedisAddr     string
	RedisPassword string

	// Empty MongoURI disables cart snapshots.
	MongoURI    string
	MongoDBName string

	// Empty KafkaBrokers disables the outbox publisher and the checkout poller.
	KafkaBrokers   []string
	EventsTopic    string
	CheckoutTopic  string
	ConsumerGroup  string
	OutboxInterval time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	pgPort, err := getEnvInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	outboxInterval, err := getEnvDuration("OUTBOX_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", "cart-pricing"),
		Env:             getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50053"),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DBDriver:        getEnv("DB_DRIVER", DriverSQLite),
		SQLitePath:      getEnv("SQLITE_PATH", "cart_pricing.db"),
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     pgPort,
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("POSTGRES_DB", "cart_pricing"),
		},
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MongoURI:       getEnv("MONGO_URI", ""),
		MongoDBName:    getEnv("MONGO_DB_NAME", "cartdb"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		EventsTopic:    getEnv("KAFKA_EVENTS_TOPIC", "cart-pricing-events"),
		CheckoutTopic:  getEnv("KAFKA_CHECKOUT_TOPIC", "checkout-outbox"),
		ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "cart-pricing-consumer"),
		OutboxInterval: outboxInterval,
	}
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", "internal/repository/migrations/"+cfg.DBDriver)

	if cfg.DBDriver != DriverPostgres && cfg.DBDriver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
