package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads pets, clinics, staff and services from the tables owned
// by the rest of the clinic backend.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetPet(ctx context.Context, id uuid.UUID) (*Pet, error) {
	var p Pet
	err := d.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, is_active
		FROM pets
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("load pet: %w", classifyPgError(err))
	}
	if !p.IsActive {
		return nil, ErrPetNotFound
	}
	return &p, nil
}

func (d *PgDirectory) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, timezone, is_active
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Timezone, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("load clinic: %w", classifyPgError(err))
	}
	if !c.IsActive {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (d *PgDirectory) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	var s Staff
	err := d.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, is_active
		FROM staff
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ClinicID, &s.Name, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("load staff: %w", classifyPgError(err))
	}
	if !s.IsActive {
		return nil, ErrStaffNotFound
	}
	return &s, nil
}

func (d *PgDirectory) GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	var s ClinicService
	err := d.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_minutes, is_active
		FROM clinic_services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ClinicID, &s.Name, &s.DurationMinutes, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("load service: %w", classifyPgError(err))
	}
	if !s.IsActive {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (d *PgDirectory) StaffNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, name
		FROM staff
		WHERE id = ANY($1::uuid[])
	`, raw)
	if err != nil {
		return nil, fmt.Errorf("load staff names: %w", classifyPgError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan staff name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load staff names: %w", classifyPgError(err))
	}
	return names, nil
}
