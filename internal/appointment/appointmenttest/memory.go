// Package appointmenttest provides in-memory implementations of the
// appointment collaborators for tests.
package appointmenttest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/policy"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// Repository is a map-backed appointment.Repository. WithinTx serializes
// callers and restores the previous rows when fn fails.
type Repository struct {
	txMu sync.Mutex

	mu           sync.Mutex
	appointments map[uuid.UUID]appointment.Appointment
	events       []appointment.EventLog

	// Err, when set, is returned by every read and write.
	Err error
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{appointments: make(map[uuid.UUID]appointment.Appointment)}
}

// Put stores a without any checks, for seeding fixtures.
func (r *Repository) Put(a appointment.Appointment) appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
		a.UpdatedAt = a.CreatedAt
	}
	r.appointments[a.ID] = a
	return a
}

func (r *Repository) Events() []appointment.EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appointment.EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Repository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	a, ok := r.appointments[id]
	if !ok || !a.IsActive {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *Repository) sorted(keep func(a appointment.Appointment) bool) []appointment.Appointment {
	var out []appointment.Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func matches(f appointment.ListFilter, a appointment.Appointment) bool {
	if !a.IsActive {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.ClinicID != nil && a.ClinicID != *f.ClinicID {
		return false
	}
	if f.StaffID != nil && (a.StaffID == nil || *a.StaffID != *f.StaffID) {
		return false
	}
	if f.PetID != nil && a.PetID != *f.PetID {
		return false
	}
	if f.OwnerID != nil && a.OwnerID != *f.OwnerID {
		return false
	}
	if f.From != nil && a.ScheduledDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.ScheduledDate.Before(*f.To) {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		found := false
		for _, field := range []*string{a.Reason, a.Notes, a.Symptoms} {
			if field != nil && strings.Contains(strings.ToLower(*field), s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *Repository) ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, 0, r.Err
	}

	all := r.sorted(func(a appointment.Appointment) bool { return matches(f, a) })
	total := len(all)
	if f.Limit > 0 {
		start := f.Offset
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		all = all[start:end]
	}
	return all, total, nil
}

func (r *Repository) AppointmentStats(ctx context.Context, f appointment.ListFilter) (*appointment.Stats, error) {
	appts, _, err := r.ListAppointments(ctx, appointment.ListFilter{
		Status: f.Status, Type: f.Type, ClinicID: f.ClinicID, StaffID: f.StaffID,
		PetID: f.PetID, OwnerID: f.OwnerID, From: f.From, To: f.To, Search: f.Search,
	})
	if err != nil {
		return nil, err
	}

	stats := &appointment.Stats{
		ByStatus: make(map[appointment.Status]int),
		ByType:   make(map[appointment.Type]int),
	}
	minutes := 0
	for _, a := range appts {
		stats.Total++
		stats.ByStatus[a.Status]++
		stats.ByType[a.Type]++
		if a.IsTelemedicine {
			stats.Telemedicine++
		}
		if a.IsHomeVisit {
			stats.HomeVisits++
		}
		minutes += a.DurationMinutes
	}
	if stats.Total > 0 {
		stats.AverageDurationMinutes = float64(minutes) / float64(stats.Total)
	}
	return stats, nil
}

func (r *Repository) ListBlocking(ctx context.Context, q appointment.BlockingQuery) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	return r.sorted(func(a appointment.Appointment) bool {
		if !a.IsActive || !a.Status.Blocking() {
			return false
		}
		if q.PetID != nil && a.PetID != *q.PetID {
			return false
		}
		if q.ClinicID != nil && a.ClinicID != *q.ClinicID {
			return false
		}
		if q.ExcludeID != nil && a.ID == *q.ExcludeID {
			return false
		}
		if !q.Window.IsZero() && !a.Interval().Overlaps(q.Window) {
			return false
		}
		return true
	}), nil
}

func (r *Repository) CountClinicAppointments(ctx context.Context, clinicID uuid.UUID, day appointment.Interval) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}

	n := 0
	for _, a := range r.appointments {
		if a.ClinicID != clinicID || !a.IsActive || a.Status == appointment.StatusCancelled {
			continue
		}
		if !a.ScheduledDate.Before(day.Start) && a.ScheduledDate.Before(day.End) {
			n++
		}
	}
	return n, nil
}

func (r *Repository) InsertAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.IsActive = true
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.appointments[stored.ID] = stored

	out := stored
	return &out, nil
}

func (r *Repository) UpdateAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	existing, ok := r.appointments[a.ID]
	if !ok || !existing.IsActive {
		return nil, appointment.ErrAppointmentNotFound
	}

	stored := *a
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	r.appointments[stored.ID] = stored

	out := stored
	return &out, nil
}

func (r *Repository) WithinTx(ctx context.Context, petID uuid.UUID, fn func(tx appointment.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := make(map[uuid.UUID]appointment.Appointment, len(r.appointments))
	for id, a := range r.appointments {
		snapshot[id] = a
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.appointments = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *Repository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Directory is a map-backed appointment.Directory.
type Directory struct {
	mu       sync.Mutex
	Pets     map[uuid.UUID]appointment.Pet
	Clinics  map[uuid.UUID]appointment.Clinic
	Staff    map[uuid.UUID]appointment.Staff
	Services map[uuid.UUID]appointment.ClinicService
}

var _ appointment.Directory = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{
		Pets:     make(map[uuid.UUID]appointment.Pet),
		Clinics:  make(map[uuid.UUID]appointment.Clinic),
		Staff:    make(map[uuid.UUID]appointment.Staff),
		Services: make(map[uuid.UUID]appointment.ClinicService),
	}
}

func (d *Directory) AddPet(ownerID uuid.UUID) appointment.Pet {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := appointment.Pet{ID: uuid.New(), OwnerID: ownerID, Name: "pet", IsActive: true}
	d.Pets[p.ID] = p
	return p
}

func (d *Directory) AddClinic(timezone string) appointment.Clinic {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := appointment.Clinic{ID: uuid.New(), Name: "clinic", Timezone: timezone, IsActive: true}
	d.Clinics[c.ID] = c
	return c
}

func (d *Directory) AddStaff(clinicID uuid.UUID, name string) appointment.Staff {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := appointment.Staff{ID: uuid.New(), ClinicID: clinicID, Name: name, IsActive: true}
	d.Staff[s.ID] = s
	return s
}

func (d *Directory) AddService(clinicID uuid.UUID) appointment.ClinicService {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := appointment.ClinicService{ID: uuid.New(), ClinicID: clinicID, Name: "service", IsActive: true}
	d.Services[s.ID] = s
	return s
}

func (d *Directory) GetPet(ctx context.Context, id uuid.UUID) (*appointment.Pet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.Pets[id]
	if !ok || !p.IsActive {
		return nil, appointment.ErrPetNotFound
	}
	return &p, nil
}

func (d *Directory) GetClinic(ctx context.Context, id uuid.UUID) (*appointment.Clinic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.Clinics[id]
	if !ok || !c.IsActive {
		return nil, appointment.ErrClinicNotFound
	}
	return &c, nil
}

func (d *Directory) GetStaff(ctx context.Context, id uuid.UUID) (*appointment.Staff, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.Staff[id]
	if !ok || !s.IsActive {
		return nil, appointment.ErrStaffNotFound
	}
	return &s, nil
}

func (d *Directory) GetService(ctx context.Context, id uuid.UUID) (*appointment.ClinicService, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.Services[id]
	if !ok || !s.IsActive {
		return nil, appointment.ErrServiceNotFound
	}
	return &s, nil
}

func (d *Directory) StaffNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if s, ok := d.Staff[id]; ok {
			names[id] = s.Name
		}
	}
	return names, nil
}

// Locker runs fn inline, or refuses every lock when Busy is set.
type Locker struct {
	Busy bool
}

var _ redisclient.Locker = Locker{}

func (l Locker) WithPetLock(ctx context.Context, petID uuid.UUID, fn func(ctx context.Context) error) error {
	if l.Busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// Policy is a fixed appointment.PolicySource.
type Policy struct {
	Config policy.Config
}

func (p Policy) Get(ctx context.Context) policy.Config { return p.Config }
