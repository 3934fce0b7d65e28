package appointment

import (
	"fmt"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusCancelled, StatusWaiting},
	StatusWaiting:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled, StatusRescheduled, StatusNoShow},
	StatusInProgress:  {StatusCompleted, StatusCancelled},
	StatusRescheduled: {StatusPending, StatusConfirmed, StatusCancelled},
	StatusCompleted:   nil,
	StatusCancelled:   nil,
	StatusNoShow:      nil,
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CanReschedule reports whether an appointment in s may be moved. Moving
// forces the status to rescheduled, so anything still open qualifies.
func CanReschedule(s Status) bool {
	switch s {
	case StatusPending, StatusWaiting, StatusConfirmed, StatusRescheduled:
		return true
	}
	return false
}

// InitialStatus validates the status a new booking starts in.
func InitialStatus(requested *Status) (Status, error) {
	if requested == nil || *requested == "" {
		return StatusPending, nil
	}
	switch *requested {
	case StatusPending, StatusConfirmed, StatusWaiting:
		return *requested, nil
	}
	return "", fmt.Errorf("%w: appointments cannot be created as %q", ErrInvalidStatus, *requested)
}

// clinicalStatus reports statuses reserved for staff roles.
func clinicalStatus(s Status) bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusNoShow
}

type ActionKind string

const (
	ActionView       ActionKind = "view"
	ActionUpdate     ActionKind = "update"
	ActionTransition ActionKind = "transition"
	ActionReschedule ActionKind = "reschedule"
	ActionCancel     ActionKind = "cancel"
)

type Action struct {
	Kind   ActionKind
	Target Status // set for ActionTransition
}

func Do(kind ActionKind) Action { return Action{Kind: kind} }

func TransitionTo(s Status) Action { return Action{Kind: ActionTransition, Target: s} }

// Authorize is the single capability check for every appointment operation.
// Privileged roles may do anything; owners may act on their own appointments
// except moving them into clinical statuses.
func Authorize(actor auth.Actor, a *Appointment, action Action) error {
	if actor.Privileged() {
		return nil
	}
	if actor.Role != auth.RolePetOwner || actor.ID != a.OwnerID {
		return ErrNotOwner
	}
	if action.Kind == ActionTransition && clinicalStatus(action.Target) {
		return fmt.Errorf("%w: %s", ErrClinicalStatus, action.Target)
	}
	return nil
}
