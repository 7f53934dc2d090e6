package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	StoreBackend string
	DatabaseURL  string
	SeedProducts string

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Kafka struct {
		Brokers []string
		Topic   string
	}

	CartMaxAttempts int
	ShutdownTimeout time.Duration
}

// Load reads the process environment, after applying an optional .env file.
func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		ServiceName:  get("SERVICE_NAME", "minishop-checkout"),
		Env:          get("ENV", "development"),
		HTTPAddr:     get("HTTP_ADDR", ":8080"),
		LogLevel:     get("LOG_LEVEL", "info"),
		LogFile:      get("LOG_FILE", ""),
		StoreBackend: strings.ToLower(get("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  get("DATABASE_URL", ""),
		SeedProducts: get("SEED_PRODUCTS", ""),
	}
	cfg.Redis.Addr = get("REDIS_ADDR", "")
	cfg.Redis.Password = getenv("REDIS_PASSWORD")
	cfg.Kafka.Topic = get("KAFKA_TOPIC", "minishop.checkout.events")
	for _, b := range strings.Split(get("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
		}
	}

	var errs []error
	var err error
	if cfg.Redis.DB, err = strconv.Atoi(get("REDIS_DB", "0")); err != nil || cfg.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be a non-negative integer"))
	}
	if cfg.CartMaxAttempts, err = strconv.Atoi(get("CART_MAX_ATTEMPTS", "3")); err != nil || cfg.CartMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("CART_MAX_ATTEMPTS must be a positive integer"))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", "10s")); err != nil || cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be a positive duration"))
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres"))
		}
		if cfg.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be set when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, postgres", cfg.StoreBackend))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// KafkaEnabled reports whether events should be forwarded to a broker.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
