package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

const appointmentColumns = `
	id, pet_id, owner_id, clinic_id, staff_id, service_id,
	scheduled_date, duration_minutes, appointment_type, priority, status, is_active,
	is_telemedicine, is_home_visit, telemedicine_link, home_visit_address,
	notes, reason, symptoms, diagnosis, treatment_plan, prescriptions,
	follow_up_instructions, payment_status, reminder_settings,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var prescriptions, reminders []byte

	err := row.Scan(
		&a.ID,
		&a.PetID,
		&a.OwnerID,
		&a.ClinicID,
		&a.StaffID,
		&a.ServiceID,
		&a.ScheduledDate,
		&a.DurationMinutes,
		&a.Type,
		&a.Priority,
		&a.Status,
		&a.IsActive,
		&a.IsTelemedicine,
		&a.IsHomeVisit,
		&a.TelemedicineLink,
		&a.HomeVisitAddress,
		&a.Notes,
		&a.Reason,
		&a.Symptoms,
		&a.Diagnosis,
		&a.TreatmentPlan,
		&prescriptions,
		&a.FollowUpInstructions,
		&a.PaymentStatus,
		&reminders,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, classifyPgError(err)
	}

	if len(prescriptions) > 0 {
		a.Prescriptions = json.RawMessage(prescriptions)
	}
	if len(reminders) > 0 {
		a.ReminderSettings = json.RawMessage(reminders)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}

	return result, nil
}

// classifyPgError maps serialization failures and timeouts to ErrTransient
// and exclusion violations to ErrOverlap. Everything else passes through.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case "23P01":
			return fmt.Errorf("%w: %w", ErrOverlap, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func buildListWhere(f ListFilter) *whereBuilder {
	w := &whereBuilder{}
	w.add("is_active = true")
	if f.Status != nil {
		w.add("status = ?", *f.Status)
	}
	if f.Type != nil {
		w.add("appointment_type = ?", *f.Type)
	}
	if f.ClinicID != nil {
		w.add("clinic_id = ?", *f.ClinicID)
	}
	if f.StaffID != nil {
		w.add("staff_id = ?", *f.StaffID)
	}
	if f.PetID != nil {
		w.add("pet_id = ?", *f.PetID)
	}
	if f.OwnerID != nil {
		w.add("owner_id = ?", *f.OwnerID)
	}
	if f.From != nil {
		w.add("scheduled_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("scheduled_date < ?", *f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + s + "%"
		w.add("(reason ILIKE ? OR notes ILIKE ? OR symptoms ILIKE ?)", pattern, pattern, pattern)
	}
	return w
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND is_active = true
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	w := buildListWhere(f)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM appointments `+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", classifyPgError(err))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + w.String() + ` ORDER BY scheduled_date ASC, id ASC`
	args := w.args
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", classifyPgError(err))
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return appts, total, nil
}

func (r *PgRepository) AppointmentStats(ctx context.Context, f ListFilter) (*Stats, error) {
	w := buildListWhere(f)
	stats := &Stats{
		ByStatus: make(map[Status]int),
		ByType:   make(map[Type]int),
	}

	err := r.q.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE is_telemedicine),
		       count(*) FILTER (WHERE is_home_visit),
		       COALESCE(avg(duration_minutes), 0)::float8
		FROM appointments `+w.String(), w.args...).Scan(
		&stats.Total,
		&stats.Telemedicine,
		&stats.HomeVisits,
		&stats.AverageDurationMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("appointment totals: %w", classifyPgError(err))
	}

	if err := r.groupCount(ctx, "status", w, func(key string, n int) { stats.ByStatus[Status(key)] = n }); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "appointment_type", w, func(key string, n int) { stats.ByType[Type(key)] = n }); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *PgRepository) groupCount(ctx context.Context, column string, w *whereBuilder, put func(key string, n int)) error {
	rows, err := r.q.Query(ctx, `
		SELECT `+column+`, count(*)
		FROM appointments `+w.String()+`
		GROUP BY `+column, w.args...)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, classifyPgError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		put(key, n)
	}
	return classifyPgError(rows.Err())
}

func (r *PgRepository) ListBlocking(ctx context.Context, q BlockingQuery) ([]Appointment, error) {
	w := &whereBuilder{}
	w.add("is_active = true")
	w.add("status IN (?, ?)", StatusPending, StatusConfirmed)
	if q.PetID != nil {
		w.add("pet_id = ?", *q.PetID)
	}
	if q.ClinicID != nil {
		w.add("clinic_id = ?", *q.ClinicID)
	}
	if q.ExcludeID != nil {
		w.add("id <> ?", *q.ExcludeID)
	}
	if !q.Window.IsZero() {
		// Same symmetric test as Interval.Overlaps.
		w.add("scheduled_date < ? AND scheduled_end > ?", q.Window.End, q.Window.Start)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments `+w.String()+`
		ORDER BY scheduled_date ASC, id ASC
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list blocking appointments: %w", classifyPgError(err))
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountClinicAppointments(ctx context.Context, clinicID uuid.UUID, day Interval) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE clinic_id = $1
		  AND is_active = true
		  AND status <> 'cancelled'
		  AND scheduled_date >= $2
		  AND scheduled_date < $3
	`, clinicID, day.Start, day.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clinic appointments: %w", classifyPgError(err))
	}
	return n, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, pet_id, owner_id, clinic_id, staff_id, service_id,
			scheduled_date, duration_minutes, scheduled_end, appointment_type, priority, status, is_active,
			is_telemedicine, is_home_visit, telemedicine_link, home_visit_address,
			notes, reason, symptoms, diagnosis, treatment_plan, prescriptions,
			follow_up_instructions, payment_status, reminder_settings,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25,
			now(), now())
		RETURNING `+appointmentColumns,
		id, a.PetID, a.OwnerID, a.ClinicID, a.StaffID, a.ServiceID,
		a.ScheduledDate, a.DurationMinutes, a.End(), a.Type, a.Priority, a.Status,
		a.IsTelemedicine, a.IsHomeVisit, a.TelemedicineLink, a.HomeVisitAddress,
		a.Notes, a.Reason, a.Symptoms, a.Diagnosis, a.TreatmentPlan, nullableJSON(a.Prescriptions),
		a.FollowUpInstructions, a.PaymentStatus, nullableJSON(a.ReminderSettings),
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET staff_id = $2,
		    service_id = $3,
		    scheduled_date = $4,
		    duration_minutes = $5,
		    scheduled_end = $6,
		    appointment_type = $7,
		    priority = $8,
		    status = $9,
		    is_telemedicine = $10,
		    is_home_visit = $11,
		    telemedicine_link = $12,
		    home_visit_address = $13,
		    notes = $14,
		    reason = $15,
		    symptoms = $16,
		    diagnosis = $17,
		    treatment_plan = $18,
		    prescriptions = $19,
		    follow_up_instructions = $20,
		    payment_status = $21,
		    reminder_settings = $22,
		    updated_at = now()
		WHERE id = $1 AND is_active = true
		RETURNING `+appointmentColumns,
		a.ID, a.StaffID, a.ServiceID,
		a.ScheduledDate, a.DurationMinutes, a.End(), a.Type, a.Priority, a.Status,
		a.IsTelemedicine, a.IsHomeVisit, a.TelemedicineLink, a.HomeVisitAddress,
		a.Notes, a.Reason, a.Symptoms, a.Diagnosis, a.TreatmentPlan, nullableJSON(a.Prescriptions),
		a.FollowUpInstructions, a.PaymentStatus, nullableJSON(a.ReminderSettings),
	)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) WithinTx(ctx context.Context, petID uuid.UUID, fn func(tx Repository) error) error {
	if r.pool == nil {
		// Already bound to a transaction.
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classifyPgError(err))
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, petID.String()); err != nil {
		return fmt.Errorf("lock pet %s: %w", petID, classifyPgError(err))
	}

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classifyPgError(err))
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
