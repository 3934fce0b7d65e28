package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateRequest struct {
	PetID     uuid.UUID
	ClinicID  uuid.UUID
	OwnerID   *uuid.UUID // honoured for privileged callers booking on behalf of an owner
	StaffID   *uuid.UUID
	ServiceID *uuid.UUID

	ScheduledDate   time.Time
	DurationMinutes *int

	Type     Type
	Priority Priority
	Status   *Status

	IsTelemedicine   bool
	IsHomeVisit      bool
	TelemedicineLink *string
	HomeVisitAddress *string

	Notes            *string
	Reason           *string
	Symptoms         *string
	PaymentStatus    *string
	ReminderSettings json.RawMessage
}

// UpdatePatch holds the fields a PATCH may change. Nil means unchanged.
type UpdatePatch struct {
	StaffID    *uuid.UUID
	ClearStaff bool
	ServiceID  *uuid.UUID

	ScheduledDate   *time.Time
	DurationMinutes *int

	Type     *Type
	Priority *Priority

	IsTelemedicine   *bool
	IsHomeVisit      *bool
	TelemedicineLink *string
	HomeVisitAddress *string

	Notes                *string
	Reason               *string
	Symptoms             *string
	Diagnosis            *string
	TreatmentPlan        *string
	Prescriptions        json.RawMessage
	FollowUpInstructions *string
	PaymentStatus        *string
	ReminderSettings     json.RawMessage
}

// staffOnly reports whether the patch edits fields only clinic staff may set.
func (p UpdatePatch) staffOnly() bool {
	return p.Diagnosis != nil || p.TreatmentPlan != nil || len(p.Prescriptions) > 0 ||
		p.FollowUpInstructions != nil || p.PaymentStatus != nil
}

func (p UpdatePatch) changesTime(a *Appointment) bool {
	if p.ScheduledDate != nil && !p.ScheduledDate.Equal(a.ScheduledDate) {
		return true
	}
	return p.DurationMinutes != nil && *p.DurationMinutes != a.DurationMinutes
}

func (p UpdatePatch) apply(a *Appointment) {
	switch {
	case p.ClearStaff:
		a.StaffID = nil
	case p.StaffID != nil:
		id := *p.StaffID
		a.StaffID = &id
	}
	if p.ServiceID != nil {
		id := *p.ServiceID
		a.ServiceID = &id
	}
	if p.ScheduledDate != nil {
		a.ScheduledDate = *p.ScheduledDate
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.IsTelemedicine != nil {
		a.IsTelemedicine = *p.IsTelemedicine
	}
	if p.IsHomeVisit != nil {
		a.IsHomeVisit = *p.IsHomeVisit
	}
	setString(&a.TelemedicineLink, p.TelemedicineLink)
	setString(&a.HomeVisitAddress, p.HomeVisitAddress)
	setString(&a.Notes, p.Notes)
	setString(&a.Reason, p.Reason)
	setString(&a.Symptoms, p.Symptoms)
	setString(&a.Diagnosis, p.Diagnosis)
	setString(&a.TreatmentPlan, p.TreatmentPlan)
	setString(&a.FollowUpInstructions, p.FollowUpInstructions)
	setString(&a.PaymentStatus, p.PaymentStatus)
	if len(p.Prescriptions) > 0 {
		a.Prescriptions = p.Prescriptions
	}
	if len(p.ReminderSettings) > 0 {
		a.ReminderSettings = p.ReminderSettings
	}
}

func setString(dst **string, v *string) {
	if v == nil {
		return
	}
	s := *v
	*dst = &s
}

type ListResult struct {
	Appointments []Appointment
	Total        int
	Page         int
	TotalPages   int
}

// CalendarQuery needs both bounds; Filter's own From/To are ignored.
// A bound flagged IsDate only carries its calendar date and is anchored at
// midnight in the calendar's time zone, which is the clinic's when Filter
// names one.
type CalendarQuery struct {
	From       time.Time
	To         time.Time
	FromIsDate bool
	ToIsDate   bool
	Filter     ListFilter
}
