package config

import (
	"testing"
	"time"
)

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGRES_DSN is empty")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("POLICY_CACHE_TTL", "90s")
	t.Setenv("DEFAULT_LEAD_TIME_HOURS", "24")
	t.Setenv("REDIS_URL", "redis://bob:pw@cache.internal:6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LockTTL != 3*time.Second {
		t.Errorf("expected LockTTL=3s, got %s", cfg.LockTTL)
	}
	if cfg.PolicyCacheTTL != 90*time.Second {
		t.Errorf("expected PolicyCacheTTL=90s, got %s", cfg.PolicyCacheTTL)
	}
	if cfg.DefaultLeadTimeHours != 24 {
		t.Errorf("expected DefaultLeadTimeHours=24, got %d", cfg.DefaultLeadTimeHours)
	}
	if cfg.DefaultDurationMinutes != 30 {
		t.Errorf("expected DefaultDurationMinutes=30, got %d", cfg.DefaultDurationMinutes)
	}
	if cfg.Redis.Addr != "cache.internal:6380" || cfg.Redis.Username != "bob" || cfg.Redis.Password != "pw" {
		t.Errorf("unexpected redis settings: %s %s %s", cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password)
	}
	if cfg.LockWait != 3*time.Second {
		t.Errorf("expected default LockWait=3s, got %s", cfg.LockWait)
	}
}

func TestLoadRedisURLCarriesTLSAndDB(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "rediss://bob:pw@cache.internal:6380/2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("expected DB=2, got %d", cfg.Redis.DB)
	}
	if cfg.Redis.TLSConfig == nil {
		t.Error("expected TLS for a rediss:// URL")
	}
}

func TestLoadRedisFromAddr(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "10.0.0.5:6379")
	t.Setenv("REDIS_PASSWORD", "pw")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Addr != "10.0.0.5:6379" || cfg.Redis.Password != "pw" {
		t.Errorf("unexpected redis settings: %s %s", cfg.Redis.Addr, cfg.Redis.Password)
	}
}

func TestLoadRejectsBadRedisURL(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "http://not-redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for a non-redis URL")
	}
}

func TestLoadRejectsShortDefaultDuration(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DEFAULT_DURATION_MINUTES", "10")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for a default duration under 15 minutes")
	}
}
