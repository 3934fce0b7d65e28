package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by the service matches exactly one of
// these with errors.Is, except raw storage failures.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrTransient  = errors.New("storage temporarily unavailable")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrAppointmentNotFound = newError(ErrNotFound, "appointment not found")
	ErrPetNotFound         = newError(ErrNotFound, "pet not found")
	ErrClinicNotFound      = newError(ErrNotFound, "clinic not found")
	ErrStaffNotFound       = newError(ErrNotFound, "staff member not found")
	ErrServiceNotFound     = newError(ErrNotFound, "service not found")

	ErrInvalidDuration   = newError(ErrBadRequest, "invalid duration")
	ErrInvalidType       = newError(ErrBadRequest, "invalid appointment type")
	ErrInvalidPriority   = newError(ErrBadRequest, "invalid priority")
	ErrInvalidStatus     = newError(ErrBadRequest, "invalid status")
	ErrInvalidTransition = newError(ErrBadRequest, "invalid status transition")
	ErrLeadTime          = newError(ErrBadRequest, "booking lead time not met")
	ErrCancellationLate  = newError(ErrBadRequest, "cancellation window has passed")
	ErrDailyCapReached   = newError(ErrBadRequest, "clinic daily appointment cap reached")
	ErrAppointmentClosed = newError(ErrBadRequest, "appointment is closed")
	ErrInvalidRange      = newError(ErrBadRequest, "invalid date range")

	ErrOverlap = newError(ErrConflict, "pet already has an appointment in this time range")

	ErrPetBeingBooked = newError(ErrTransient, "pet is currently being booked, please retry")

	ErrNotOwner       = newError(ErrForbidden, "not allowed to act on this appointment")
	ErrClinicalStatus = newError(ErrForbidden, "only clinic staff may set this status")
	ErrClinicalFields = newError(ErrForbidden, "only clinic staff may edit clinical fields")
)

// ConflictError carries the appointment that blocks the requested interval.
type ConflictError struct {
	ConflictingID uuid.UUID
	Interval      Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: overlaps appointment %s (%s - %s)",
		ErrOverlap.Error(), e.ConflictingID,
		e.Interval.Start.Format("2006-01-02T15:04Z07:00"), e.Interval.End.Format("15:04Z07:00"))
}

func (e *ConflictError) Unwrap() error { return ErrOverlap }
