package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/policy"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	logger.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Duration("lock_wait", cfg.LockWait),
		zap.Duration("policy_cache_ttl", cfg.PolicyCacheTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rdb.Close())
	}()
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	policies := policy.NewCache(policy.NewPgProvider(pgPool), policy.Config{
		LeadTimeHours:           cfg.DefaultLeadTimeHours,
		CancellationWindowHours: cfg.DefaultCancellationWindowHours,
		DefaultDurationMinutes:  cfg.DefaultDurationMinutes,
		DailyAppointmentCap:     cfg.DefaultDailyCap,
	}, cfg.PolicyCacheTTL, logger)
	policies.RefreshIfStale(rootCtx)

	go policies.RunRefresher(rootCtx, cfg.PolicyCacheTTL)
	go func() {
		if err := policy.ListenForInvalidations(rootCtx, rdb, cfg.PolicyInvalidateChannel, policies, logger); err != nil {
			logger.Warn("policy invalidation listener stopped", zap.Error(err))
		}
	}()

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		appointment.NewPgDirectory(pgPool),
		redisclient.NewRedisPetLocker(rdb, cfg.LockTTL, cfg.LockWait),
		policies,
		logger,
		appointment.WithCalendarMaxRange(cfg.CalendarMaxRangeDays),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Tokens:   auth.NewTokenService(cfg.JWTSecret, 12*time.Hour),
		Logger:   logger,
		Postgres: pgPool,
		Redis:    api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutting down api-server")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("api-server stopped cleanly")
	return nil
}
