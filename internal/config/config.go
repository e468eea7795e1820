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
	defaultAppName         = "PayLentine"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultCurrency        = "USD"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultReverifyTTL     = 5 * time.Minute
	defaultPendingTTL      = 24 * time.Hour
	defaultSweepInterval   = time.Minute
	defaultLoginRateLimit  = 5
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	LogFormat       string
	DatabaseURL     string
	RedisURL        string
	AutoMigrate     bool
	DefaultCurrency string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration

	JWTSecret       string
	RefreshSecret   string
	ReverifySecret  string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ReverifyTTL     time.Duration
	LoginRateLimit  int

	PendingTTL    time.Duration
	SweepInterval time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is read first when present;
// variables already set in the environment take precedence over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", defaultCurrency)),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		ReverifySecret:  os.Getenv("REVERIFY_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationFromEnv("", "ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationFromEnv("", "REFRESH_TOKEN_TTL", defaultRefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ReverifyTTL, err = durationFromEnv("", "REVERIFY_TTL", defaultReverifyTTL); err != nil {
		return Config{}, err
	}
	if cfg.PendingTTL, err = durationFromEnv("", "PENDING_TTL", defaultPendingTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationFromEnv("", "SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return Config{}, err
	}

	if cfg.AutoMigrate, err = boolFromEnv("AUTO_MIGRATE", true); err != nil {
		return Config{}, err
	}

	cfg.LoginRateLimit = defaultLoginRateLimit
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
		}
		cfg.LoginRateLimit = n
	}

	if cfg.PendingTTL <= 0 {
		return Config{}, fmt.Errorf("PENDING_TTL must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" || cfg.RefreshSecret == "" || cfg.ReverifySecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET, REFRESH_SECRET and REVERIFY_SECRET must be set")
		}
	} else {
		cfg.JWTSecret = fallback(cfg.JWTSecret, "dev-access-secret")
		cfg.RefreshSecret = fallback(cfg.RefreshSecret, "dev-refresh-secret")
		cfg.ReverifySecret = fallback(cfg.ReverifySecret, "dev-reverify-secret")
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment, where
// Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationFromEnv(secondsKey, durationKey string, def time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return def, nil
}

func boolFromEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
