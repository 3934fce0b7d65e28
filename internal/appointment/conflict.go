package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ConflictDetector answers whether a pet already holds a blocking
// appointment overlapping a proposed interval.
type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// HasConflict returns the earliest blocking appointment of petID that
// overlaps iv, ignoring excludeID. A pet with no appointments never conflicts.
func (d *ConflictDetector) HasConflict(ctx context.Context, petID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, *Appointment, error) {
	candidates, err := d.repo.ListBlocking(ctx, BlockingQuery{
		PetID:     &petID,
		Window:    iv,
		ExcludeID: excludeID,
	})
	if err != nil {
		return false, nil, fmt.Errorf("load pet appointments: %w", err)
	}

	// The store narrows by window already; the test here is authoritative.
	for i := range candidates {
		c := candidates[i]
		if excludeID != nil && c.ID == *excludeID {
			continue
		}
		if !c.IsActive || !c.Status.Blocking() {
			continue
		}
		if c.Interval().Overlaps(iv) {
			return true, &c, nil
		}
	}
	return false, nil, nil
}

// Check is HasConflict folded into a single error: nil, a *ConflictError,
// or a storage failure.
func (d *ConflictDetector) Check(ctx context.Context, petID uuid.UUID, iv Interval, excludeID *uuid.UUID) error {
	found, existing, err := d.HasConflict(ctx, petID, iv, excludeID)
	if err != nil {
		return err
	}
	if found {
		return &ConflictError{ConflictingID: existing.ID, Interval: existing.Interval()}
	}
	return nil
}
