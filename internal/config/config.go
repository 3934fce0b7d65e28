package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Env             string         // dev, prod
	HTTPPort        string         // default 8080
	LogLevel        string         // debug, info, warn, error
	PostgresDSN     string         // required
	Redis           *redis.Options // from REDIS_URL, or REDIS_ADDR/USERNAME/PASSWORD
	LockTTL         time.Duration  // how long a Redis pet lock lives
	LockWait        time.Duration  // how long to retry a busy pet lock
	ShutdownTimeout time.Duration  // graceful shutdown timeout
	JWTSecret       string         // required, HS256 signing key

	PolicyCacheTTL          time.Duration // how long scheduling settings are cached in-process
	PolicyInvalidateChannel string        // redis pub/sub channel that drops the cached settings

	// Fallback scheduling policy, used when the settings row is missing or unreadable.
	DefaultLeadTimeHours           int
	DefaultCancellationWindowHours int
	DefaultDurationMinutes         int
	DefaultDailyCap                int

	CalendarMaxRangeDays int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		LockTTL:         getDuration("LOCK_TTL", 5*time.Second),
		LockWait:        getDuration("LOCK_WAIT", 3*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		JWTSecret:       os.Getenv("JWT_SECRET"),

		PolicyCacheTTL:          getDuration("POLICY_CACHE_TTL", 5*time.Minute),
		PolicyInvalidateChannel: getEnv("POLICY_INVALIDATE_CHANNEL", "scheduling:settings:invalidate"),

		DefaultLeadTimeHours:           getInt("DEFAULT_LEAD_TIME_HOURS", 2),
		DefaultCancellationWindowHours: getInt("DEFAULT_CANCELLATION_WINDOW_HOURS", 24),
		DefaultDurationMinutes:         getInt("DEFAULT_DURATION_MINUTES", 30),
		DefaultDailyCap:                getInt("DEFAULT_DAILY_CAP", 0),

		CalendarMaxRangeDays: getInt("CALENDAR_MAX_RANGE_DAYS", 62),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("POSTGRES_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.DefaultDurationMinutes < 15 {
		return Config{}, fmt.Errorf("DEFAULT_DURATION_MINUTES must be at least 15, got %d", cfg.DefaultDurationMinutes)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cfg.Redis = opts
	} else {
		cfg.Redis = &redis.Options{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid integer for %s=%q, using default %d\n", key, v, def)
	}
	return def
}
