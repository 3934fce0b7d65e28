package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows appointment queries. Nil fields are ignored. From is
// inclusive and To exclusive on scheduled_date. Limit 0 returns every match.
type ListFilter struct {
	Status   *Status
	Type     *Type
	ClinicID *uuid.UUID
	StaffID  *uuid.UUID
	PetID    *uuid.UUID
	OwnerID  *uuid.UUID
	From     *time.Time
	To       *time.Time
	Search   string

	Limit  int
	Offset int
}

// BlockingQuery selects active appointments in a blocking status. Window,
// when set, limits results to appointments overlapping it.
type BlockingQuery struct {
	PetID     *uuid.UUID
	ClinicID  *uuid.UUID
	Window    Interval
	ExcludeID *uuid.UUID
}

type Stats struct {
	Total                  int
	ByStatus               map[Status]int
	ByType                 map[Type]int
	Telemedicine           int
	HomeVisits             int
	AverageDurationMinutes float64
}

// Repository is the only writer of appointment rows.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListAppointments returns matches ordered by scheduled_date ascending
	// plus the total match count ignoring Limit/Offset.
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error)
	AppointmentStats(ctx context.Context, f ListFilter) (*Stats, error)

	// For conflict checks and slot generation, ordered by scheduled_date.
	ListBlocking(ctx context.Context, q BlockingQuery) ([]Appointment, error)

	// CountClinicAppointments counts active, not cancelled appointments of
	// a clinic starting inside day.
	CountClinicAppointments(ctx context.Context, clinicID uuid.UUID, day Interval) (int, error)

	InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// WithinTx runs fn in one serializable transaction holding an advisory
	// lock on petID. The Repository passed to fn is bound to that transaction.
	WithinTx(ctx context.Context, petID uuid.UUID, fn func(tx Repository) error) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory resolves the records owned by other domains. Inactive records
// are reported as not found.
type Directory interface {
	GetPet(ctx context.Context, id uuid.UUID) (*Pet, error)
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error)
	StaffNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}
