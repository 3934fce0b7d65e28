package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the scheduling policy administrators maintain in
// scheduling_settings. The scheduling core only ever reads it.
type Config struct {
	LeadTimeHours           int
	CancellationWindowHours int
	DefaultDurationMinutes  int
	DailyAppointmentCap     int // 0 disables the cap
}

func (c Config) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeHours) * time.Hour
}

func (c Config) CancellationWindow() time.Duration {
	return time.Duration(c.CancellationWindowHours) * time.Hour
}

var ErrSettingsNotFound = errors.New("scheduling settings not found")

// Provider loads the current policy from its source of truth.
type Provider interface {
	LoadPolicy(ctx context.Context) (Config, error)
}

type PgProvider struct {
	pool *pgxpool.Pool
}

func NewPgProvider(pool *pgxpool.Pool) *PgProvider {
	return &PgProvider{pool: pool}
}

func (p *PgProvider) LoadPolicy(ctx context.Context) (Config, error) {
	var c Config
	err := p.pool.QueryRow(ctx, `
		SELECT min_lead_time_hours, cancellation_window_hours, default_duration_minutes, daily_appointment_cap
		FROM scheduling_settings
		WHERE id = 1
	`).Scan(
		&c.LeadTimeHours,
		&c.CancellationWindowHours,
		&c.DefaultDurationMinutes,
		&c.DailyAppointmentCap,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrSettingsNotFound
		}
		return Config{}, fmt.Errorf("load scheduling settings: %w", err)
	}
	return c, nil
}
