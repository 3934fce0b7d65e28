package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/policy"
)

// PolicySource hands out the current scheduling policy. *policy.Cache
// satisfies it.
type PolicySource interface {
	Get(ctx context.Context) policy.Config
}

// Guard enforces the lead time on bookings and the cancellation window on
// cancellations.
type Guard struct {
	policies PolicySource
}

func NewGuard(policies PolicySource) *Guard {
	return &Guard{policies: policies}
}

func (g *Guard) CanBook(ctx context.Context, proposedStart, now time.Time) error {
	cfg := g.policies.Get(ctx)
	earliest := now.Add(cfg.LeadTime())
	if proposedStart.Before(earliest) {
		return fmt.Errorf("%w: appointments must be booked at least %d hours in advance (earliest %s)",
			ErrLeadTime, cfg.LeadTimeHours, earliest.UTC().Format(time.RFC3339))
	}
	return nil
}

// CanCancel rejects cancellations inside the window before the appointment
// start. Privileged actors are never rejected.
func (g *Guard) CanCancel(ctx context.Context, actor auth.Actor, appointmentStart, now time.Time) error {
	if actor.Privileged() {
		return nil
	}
	cfg := g.policies.Get(ctx)
	deadline := appointmentStart.Add(-cfg.CancellationWindow())
	if now.After(deadline) {
		return fmt.Errorf("%w: appointments can only be cancelled at least %d hours before they start",
			ErrCancellationLate, cfg.CancellationWindowHours)
	}
	return nil
}

func (g *Guard) DefaultDuration(ctx context.Context) int {
	return g.policies.Get(ctx).DefaultDurationMinutes
}

func (g *Guard) DailyCap(ctx context.Context) int {
	return g.policies.Get(ctx).DailyAppointmentCap
}
