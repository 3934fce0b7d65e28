package api

import (
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const dateLayout = "2006-01-02"

// queryParser collects every malformed parameter instead of stopping at the
// first one.
type queryParser struct {
	values url.Values
	err    error
}

func newQueryParser(values url.Values) *queryParser {
	return &queryParser{values: values}
}

func (p *queryParser) fail(field, msg string) {
	p.err = multierr.Append(p.err, &FieldError{Field: field, Message: msg})
}

func (p *queryParser) uuidParam(name string) *uuid.UUID {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		p.fail(name, "must be a valid UUID")
		return nil
	}
	return &id
}

func (p *queryParser) intParam(name string) int {
	raw := p.values.Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.fail(name, "must be a non-negative integer")
		return 0
	}
	return n
}

// timeParam accepts RFC 3339 or a bare date. A bare date used as an upper bound
// covers the whole day, so it becomes the following midnight.
func (p *queryParser) timeParam(name string, upper bool) *time.Time {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		p.fail(name, "must be YYYY-MM-DD or RFC 3339")
		return nil
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t
}

// isDate reports whether name was given as a bare YYYY-MM-DD date.
func (p *queryParser) isDate(name string) bool {
	_, err := time.Parse(dateLayout, p.values.Get(name))
	return err == nil
}

// filter reads the list filters shared by list, stats and calendar.
func (p *queryParser) filter() appointment.ListFilter {
	f := appointment.ListFilter{
		ClinicID: p.uuidParam("clinic_id"),
		StaffID:  p.uuidParam("staff_id"),
		PetID:    p.uuidParam("pet_id"),
		OwnerID:  p.uuidParam("owner_id"),
		From:     p.timeParam("date_from", false),
		To:       p.timeParam("date_to", true),
		Search:   p.values.Get("search"),
	}
	if raw := p.values.Get("status"); raw != "" {
		s := appointment.Status(raw)
		if !s.Valid() {
			p.fail("status", "unknown status")
		} else {
			f.Status = &s
		}
	}
	if raw := p.values.Get("type"); raw != "" {
		t := appointment.Type(raw)
		if !t.Valid() {
			p.fail("type", "unknown appointment type")
		} else {
			f.Type = &t
		}
	}
	return f
}

func (p *queryParser) Err() error { return p.err }
