package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
	StatusWaiting     Status = "waiting"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled, StatusWaiting:
		return true
	}
	return false
}

// Blocking statuses hold their interval against other bookings of the same pet.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// BlockingStatuses is the set counted by conflict detection and slot generation.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed}

type Type string

const (
	TypeConsultation           Type = "consultation"
	TypeVaccination            Type = "vaccination"
	TypeSurgery                Type = "surgery"
	TypeFollowUp               Type = "follow_up"
	TypeEmergency              Type = "emergency"
	TypeWellnessExam           Type = "wellness_exam"
	TypeDentalCleaning         Type = "dental_cleaning"
	TypeLaboratoryTest         Type = "laboratory_test"
	TypeImaging                Type = "imaging"
	TypeTherapy                Type = "therapy"
	TypeGrooming               Type = "grooming"
	TypeBehavioralTraining     Type = "behavioral_training"
	TypeNutritionConsultation  Type = "nutrition_consultation"
	TypePhysicalTherapy        Type = "physical_therapy"
	TypeSpecialistConsultation Type = "specialist_consultation"
)

var Types = []Type{
	TypeConsultation, TypeVaccination, TypeSurgery, TypeFollowUp, TypeEmergency,
	TypeWellnessExam, TypeDentalCleaning, TypeLaboratoryTest, TypeImaging, TypeTherapy,
	TypeGrooming, TypeBehavioralTraining, TypeNutritionConsultation, TypePhysicalTherapy,
	TypeSpecialistConsultation,
}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// MinDurationMinutes is the shortest bookable appointment.
const MinDurationMinutes = 15

type Appointment struct {
	ID        uuid.UUID
	PetID     uuid.UUID
	OwnerID   uuid.UUID
	ClinicID  uuid.UUID
	StaffID   *uuid.UUID
	ServiceID *uuid.UUID

	ScheduledDate   time.Time
	DurationMinutes int

	Type     Type
	Priority Priority
	Status   Status
	IsActive bool

	IsTelemedicine   bool
	IsHomeVisit      bool
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

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) End() time.Time {
	return a.ScheduledDate.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.ScheduledDate, End: a.End()}
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, durationMinutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

// Overlaps reports whether the two half-open intervals intersect. Touching
// intervals (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) IsZero() bool {
	return i.Start.IsZero() && i.End.IsZero()
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Collaborator records. The scheduling core only reads these.

type Pet struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Name     string
	IsActive bool
}

type Clinic struct {
	ID       uuid.UUID
	Name     string
	Timezone string
	IsActive bool
}

// Location resolves the clinic's time zone, defaulting to UTC when the
// stored name is empty or unknown.
func (c Clinic) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Staff struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
	Name     string
	IsActive bool
}

type ClinicService struct {
	ID              uuid.UUID
	ClinicID        uuid.UUID
	Name            string
	DurationMinutes *int
	IsActive        bool
}
