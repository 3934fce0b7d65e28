package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Working window and slot step. Clinic operating hours are not configurable.
const (
	WorkdayStartHour = 8
	WorkdayEndHour   = 18
	SlotStep         = 30 * time.Minute
)

type TimeSlot struct {
	Start                 time.Time
	End                   time.Time
	Available             bool
	BlockingAppointmentID *uuid.UUID
}

// WorkdayWindow returns 08:00-18:00 on date's calendar day in loc.
func WorkdayWindow(date time.Time, loc *time.Location) Interval {
	y, m, d := date.Date()
	return Interval{
		Start: time.Date(y, m, d, WorkdayStartHour, 0, 0, 0, loc),
		End:   time.Date(y, m, d, WorkdayEndHour, 0, 0, 0, loc),
	}
}

// DayBounds returns [00:00, next day 00:00) of date's calendar day in loc.
func DayBounds(date time.Time, loc *time.Location) Interval {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// GenerateSlots lays durationMinutes long slots over window every SlotStep.
// A slot that would run past the window end is dropped. Each slot is marked
// unavailable if it overlaps any booked interval; booked must be in
// chronological order so the earliest blocker is reported.
func GenerateSlots(window Interval, durationMinutes int, booked []Appointment) []TimeSlot {
	duration := time.Duration(durationMinutes) * time.Minute
	slots := []TimeSlot{}
	if duration <= 0 {
		return slots
	}

	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(SlotStep) {
		slot := TimeSlot{Start: start, End: start.Add(duration), Available: true}
		iv := Interval{Start: slot.Start, End: slot.End}

		for i := range booked {
			b := booked[i]
			if !b.Status.Blocking() {
				continue
			}
			if b.Interval().Overlaps(iv) {
				id := b.ID
				slot.Available = false
				slot.BlockingAppointmentID = &id
				break
			}
		}

		slots = append(slots, slot)
	}

	return slots
}

// AvailabilityGenerator computes bookable slots for a clinic day.
type AvailabilityGenerator struct {
	repo Repository
}

func NewAvailabilityGenerator(repo Repository) *AvailabilityGenerator {
	return &AvailabilityGenerator{repo: repo}
}

func (g *AvailabilityGenerator) AvailableSlots(ctx context.Context, clinicID uuid.UUID, date time.Time, loc *time.Location, durationMinutes int) ([]TimeSlot, error) {
	if durationMinutes < MinDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be at least %d minutes", ErrInvalidDuration, MinDurationMinutes)
	}
	if loc == nil {
		loc = time.UTC
	}

	window := WorkdayWindow(date, loc)
	booked, err := g.repo.ListBlocking(ctx, BlockingQuery{
		ClinicID: &clinicID,
		Window:   window,
	})
	if err != nil {
		return nil, fmt.Errorf("load clinic appointments: %w", err)
	}

	return GenerateSlots(window, durationMinutes, booked), nil
}
