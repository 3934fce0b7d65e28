package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type Service struct {
	repo      Repository
	directory Directory
	locker    redisclient.Locker
	guard     *Guard
	slots     *AvailabilityGenerator
	logger    *zap.Logger

	now              func() time.Time
	calendarMaxRange time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now for policy checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCalendarMaxRange(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.calendarMaxRange = time.Duration(days) * 24 * time.Hour
		}
	}
}

func NewService(repo Repository, directory Directory, locker redisclient.Locker, policies PolicySource, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		directory:        directory,
		locker:           locker,
		guard:            NewGuard(policies),
		slots:            NewAvailabilityGenerator(repo),
		logger:           logger,
		now:              time.Now,
		calendarMaxRange: 62 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointment books a pet into a clinic. The conflict check and the
// insert run under the pet lock inside one serializable transaction.
func (s *Service) CreateAppointment(ctx context.Context, actor auth.Actor, req CreateRequest) (*Appointment, error) {
	duration := s.guard.DefaultDuration(ctx)
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration < MinDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be at least %d minutes", ErrInvalidDuration, MinDurationMinutes)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}
	status, err := InitialStatus(req.Status)
	if err != nil {
		return nil, err
	}

	pet, err := s.directory.GetPet(ctx, req.PetID)
	if err != nil {
		return nil, s.lookupError("load pet", err)
	}
	ownerID := actor.ID
	if actor.Privileged() {
		ownerID = pet.OwnerID
		if req.OwnerID != nil {
			ownerID = *req.OwnerID
		}
	}
	if pet.OwnerID != ownerID {
		return nil, fmt.Errorf("%w for this owner", ErrPetNotFound)
	}

	clinic, err := s.directory.GetClinic(ctx, req.ClinicID)
	if err != nil {
		return nil, s.lookupError("load clinic", err)
	}
	if req.StaffID != nil {
		if _, err := s.directory.GetStaff(ctx, *req.StaffID); err != nil {
			return nil, s.lookupError("load staff", err)
		}
	}
	if req.ServiceID != nil {
		if _, err := s.directory.GetService(ctx, *req.ServiceID); err != nil {
			return nil, s.lookupError("load service", err)
		}
	}

	if err := s.guard.CanBook(ctx, req.ScheduledDate, s.now()); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PetID:            pet.ID,
		OwnerID:          ownerID,
		ClinicID:         clinic.ID,
		StaffID:          req.StaffID,
		ServiceID:        req.ServiceID,
		ScheduledDate:    req.ScheduledDate,
		DurationMinutes:  duration,
		Type:             req.Type,
		Priority:         priority,
		Status:           status,
		IsActive:         true,
		IsTelemedicine:   req.IsTelemedicine,
		IsHomeVisit:      req.IsHomeVisit,
		TelemedicineLink: req.TelemedicineLink,
		HomeVisitAddress: req.HomeVisitAddress,
		Notes:            req.Notes,
		Reason:           req.Reason,
		Symptoms:         req.Symptoms,
		PaymentStatus:    req.PaymentStatus,
		ReminderSettings: req.ReminderSettings,
	}

	var created *Appointment
	err = s.withPetTx(ctx, pet.ID, func(ctx context.Context, tx Repository) error {
		if appt.Status.Blocking() {
			if err := NewConflictDetector(tx).Check(ctx, pet.ID, appt.Interval(), nil); err != nil {
				return err
			}
		}

		if limit := s.guard.DailyCap(ctx); limit > 0 {
			loc := clinic.Location()
			n, err := tx.CountClinicAppointments(ctx, clinic.ID, DayBounds(appt.ScheduledDate.In(loc), loc))
			if err != nil {
				return err
			}
			if n >= limit {
				return fmt.Errorf("%w: clinic accepts at most %d appointments per day", ErrDailyCapReached, limit)
			}
		}

		var err error
		created, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return nil, s.fail("create appointment", err)
	}

	s.logEvent(ctx, actor, created.ID, EventAppointmentCreated, map[string]any{
		"pet_id":           created.PetID.String(),
		"clinic_id":        created.ClinicID.String(),
		"scheduled_date":   created.ScheduledDate,
		"duration_minutes": created.DurationMinutes,
		"status":           created.Status,
	})

	return created, nil
}

// GetAppointment loads one appointment the actor is allowed to see.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt, Do(ActionView)); err != nil {
		return nil, err
	}
	return appt, nil
}

// UpdateAppointment merges patch into the appointment. A time or duration
// change is re-checked for conflicts against the pet's other bookings.
func (s *Service) UpdateAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, patch UpdatePatch) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt, Do(ActionUpdate)); err != nil {
		return nil, err
	}
	if !actor.Privileged() && patch.staffOnly() {
		return nil, ErrClinicalFields
	}

	if patch.Type != nil && !patch.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, *patch.Type)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, *patch.Priority)
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes < MinDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be at least %d minutes", ErrInvalidDuration, MinDurationMinutes)
	}
	if patch.StaffID != nil {
		if _, err := s.directory.GetStaff(ctx, *patch.StaffID); err != nil {
			return nil, s.lookupError("load staff", err)
		}
	}
	if patch.ServiceID != nil {
		if _, err := s.directory.GetService(ctx, *patch.ServiceID); err != nil {
			return nil, s.lookupError("load service", err)
		}
	}

	if patch.changesTime(appt) {
		if appt.Status.Terminal() {
			return nil, fmt.Errorf("%w: a %s appointment cannot be moved", ErrAppointmentClosed, appt.Status)
		}
		if patch.ScheduledDate != nil && !patch.ScheduledDate.Equal(appt.ScheduledDate) {
			if err := s.guard.CanBook(ctx, *patch.ScheduledDate, s.now()); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.mutate(ctx, appt, func(ctx context.Context, tx Repository, a *Appointment) error {
		moved := patch.changesTime(a)
		patch.apply(a)
		if !moved {
			return nil
		}
		if a.Status.Terminal() {
			return fmt.Errorf("%w: a %s appointment cannot be moved", ErrAppointmentClosed, a.Status)
		}
		return NewConflictDetector(tx).Check(ctx, a.PetID, a.Interval(), &a.ID)
	})
	if err != nil {
		return nil, s.fail("update appointment", err)
	}

	s.logEvent(ctx, actor, updated.ID, EventAppointmentUpdated, map[string]any{
		"scheduled_date":   updated.ScheduledDate,
		"duration_minutes": updated.DurationMinutes,
	})

	return updated, nil
}

// UpdateStatus moves the appointment along the status graph.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt, TransitionTo(to)); err != nil {
		return nil, err
	}
	if err := ValidateTransition(appt.Status, to); err != nil {
		return nil, err
	}
	if to == StatusCancelled {
		if err := s.guard.CanCancel(ctx, actor, appt.ScheduledDate, s.now()); err != nil {
			return nil, err
		}
	}

	from := appt.Status
	updated, err := s.mutate(ctx, appt, func(ctx context.Context, tx Repository, a *Appointment) error {
		if err := ValidateTransition(a.Status, to); err != nil {
			return err
		}
		// Re-entering a blocking status must not create an overlap.
		if to.Blocking() && !a.Status.Blocking() {
			if err := NewConflictDetector(tx).Check(ctx, a.PetID, a.Interval(), &a.ID); err != nil {
				return err
			}
		}
		from = a.Status
		a.Status = to
		return nil
	})
	if err != nil {
		return nil, s.fail("update appointment status", err)
	}

	s.logEvent(ctx, actor, updated.ID, EventAppointmentStatusChanged, map[string]any{
		"from": from,
		"to":   to,
	})

	return updated, nil
}

// RescheduleAppointment moves the appointment to newDate, keeping its
// duration, and marks it rescheduled.
func (s *Service) RescheduleAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, newDate time.Time) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt, Do(ActionReschedule)); err != nil {
		return nil, err
	}
	if !CanReschedule(appt.Status) {
		return nil, fmt.Errorf("%w: a %s appointment cannot be rescheduled", ErrInvalidTransition, appt.Status)
	}
	if err := s.guard.CanBook(ctx, newDate, s.now()); err != nil {
		return nil, err
	}

	previous := appt.ScheduledDate
	updated, err := s.mutate(ctx, appt, func(ctx context.Context, tx Repository, a *Appointment) error {
		if !CanReschedule(a.Status) {
			return fmt.Errorf("%w: a %s appointment cannot be rescheduled", ErrInvalidTransition, a.Status)
		}
		if err := NewConflictDetector(tx).Check(ctx, a.PetID, NewInterval(newDate, a.DurationMinutes), &a.ID); err != nil {
			return err
		}
		previous = a.ScheduledDate
		a.ScheduledDate = newDate
		a.Status = StatusRescheduled
		return nil
	})
	if err != nil {
		return nil, s.fail("reschedule appointment", err)
	}

	s.logEvent(ctx, actor, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from": previous,
		"to":   updated.ScheduledDate,
	})

	return updated, nil
}

// CancelAppointment sets the status to cancelled. The row stays active.
func (s *Service) CancelAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt, Do(ActionCancel)); err != nil {
		return nil, err
	}
	if err := ValidateTransition(appt.Status, StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.guard.CanCancel(ctx, actor, appt.ScheduledDate, s.now()); err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, appt, func(ctx context.Context, tx Repository, a *Appointment) error {
		if err := ValidateTransition(a.Status, StatusCancelled); err != nil {
			return err
		}
		a.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, s.fail("cancel appointment", err)
	}

	s.logEvent(ctx, actor, updated.ID, EventAppointmentCancelled, map[string]any{
		"privileged": actor.Privileged(),
	})

	return updated, nil
}

// ListAppointments pages through appointments visible to actor, oldest first.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, f ListFilter, page, limit int) (*ListResult, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	f = scope(actor, f)
	f.Limit = limit
	f.Offset = (page - 1) * limit

	appts, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail("list appointments", err)
	}

	return &ListResult{
		Appointments: appts,
		Total:        total,
		Page:         page,
		TotalPages:   (total + limit - 1) / limit,
	}, nil
}

func (s *Service) Stats(ctx context.Context, actor auth.Actor, f ListFilter) (*Stats, error) {
	f = scope(actor, f)
	f.Limit, f.Offset = 0, 0

	stats, err := s.repo.AppointmentStats(ctx, f)
	if err != nil {
		return nil, s.fail("appointment stats", err)
	}
	return stats, nil
}

// AvailableSlots lists the slots of date's working window in the clinic's
// time zone. durationMinutes defaults to the configured duration.
func (s *Service) AvailableSlots(ctx context.Context, clinicID uuid.UUID, date time.Time, durationMinutes *int) ([]TimeSlot, error) {
	clinic, err := s.directory.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, s.lookupError("load clinic", err)
	}

	duration := s.guard.DefaultDuration(ctx)
	if durationMinutes != nil {
		duration = *durationMinutes
	}

	slots, err := s.slots.AvailableSlots(ctx, clinic.ID, date, clinic.Location(), duration)
	if err != nil {
		return nil, s.fail("available slots", err)
	}
	return slots, nil
}

// Calendar groups the appointments in [From, To) by day and staff member.
func (s *Service) Calendar(ctx context.Context, actor auth.Actor, q CalendarQuery) ([]CalendarDay, error) {
	if q.From.IsZero() || q.To.IsZero() {
		return nil, fmt.Errorf("%w: date_from and date_to are required", ErrInvalidRange)
	}
	if !q.To.After(q.From) {
		return nil, fmt.Errorf("%w: date_to must be after date_from", ErrInvalidRange)
	}
	if q.To.Sub(q.From) > s.calendarMaxRange {
		return nil, fmt.Errorf("%w: range may span at most %d days", ErrInvalidRange, int(s.calendarMaxRange.Hours()/24))
	}

	f := scope(actor, q.Filter)

	loc := time.UTC
	if f.ClinicID != nil {
		clinic, err := s.directory.GetClinic(ctx, *f.ClinicID)
		if err != nil {
			return nil, s.lookupError("load clinic", err)
		}
		loc = clinic.Location()
	}

	from, to := q.From, q.To
	if q.FromIsDate {
		from = localMidnight(from, loc)
	}
	if q.ToIsDate {
		to = localMidnight(to, loc)
	}
	f.From, f.To = &from, &to
	f.Limit, f.Offset = 0, 0

	appts, _, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail("calendar appointments", err)
	}

	seen := make(map[uuid.UUID]struct{})
	var staffIDs []uuid.UUID
	for _, a := range appts {
		if a.StaffID == nil {
			continue
		}
		if _, ok := seen[*a.StaffID]; !ok {
			seen[*a.StaffID] = struct{}{}
			staffIDs = append(staffIDs, *a.StaffID)
		}
	}

	names, err := s.directory.StaffNames(ctx, staffIDs)
	if err != nil {
		s.logger.Warn("calendar rendered without staff names", zap.Error(err))
		names = nil
	}

	return BuildCalendar(appts, loc, names), nil
}

// scope restricts non-privileged actors to their own appointments.
func scope(actor auth.Actor, f ListFilter) ListFilter {
	if !actor.Privileged() {
		id := actor.ID
		f.OwnerID = &id
	}
	return f
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, s.fail("load appointment", err)
	}
	return appt, nil
}

// localMidnight keeps t's calendar date and moves it to midnight in loc.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// withPetTx runs fn under the pet lock inside one repository transaction.
func (s *Service) withPetTx(ctx context.Context, petID uuid.UUID, fn func(ctx context.Context, tx Repository) error) error {
	err := s.locker.WithPetLock(ctx, petID, func(lockCtx context.Context) error {
		return s.repo.WithinTx(lockCtx, petID, func(tx Repository) error {
			return fn(lockCtx, tx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrPetBeingBooked
	}
	return err
}

// mutate reloads the appointment inside the pet transaction, lets change
// edit it and writes the result back.
func (s *Service) mutate(ctx context.Context, current *Appointment, change func(ctx context.Context, tx Repository, a *Appointment) error) (*Appointment, error) {
	var updated *Appointment
	err := s.withPetTx(ctx, current.PetID, func(ctx context.Context, tx Repository) error {
		fresh, err := tx.GetAppointmentByID(ctx, current.ID)
		if err != nil {
			return err
		}
		if err := change(ctx, tx, fresh); err != nil {
			return err
		}
		updated, err = tx.UpdateAppointment(ctx, fresh)
		return err
	})
	return updated, err
}

func (s *Service) lookupError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return s.fail(op, fmt.Errorf("%s: %w", op, err))
}

// fail logs storage failures and returns err unchanged. Domain errors pass
// through silently.
func (s *Service) fail(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	s.logger.Error("appointment storage failure", zap.String("op", op), zap.Error(err))
	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden)
}

func (s *Service) logEvent(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	actorID := actor.ID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		ActorID:       &actorID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
