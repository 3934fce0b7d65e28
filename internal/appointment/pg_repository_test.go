package appointment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestBuildListWhere(t *testing.T) {
	status := StatusConfirmed
	clinic := uuid.New()

	w := buildListWhere(ListFilter{Status: &status, ClinicID: &clinic, Search: " cough "})

	want := "WHERE is_active = true AND status = $1 AND clinic_id = $2 AND (reason ILIKE $3 OR notes ILIKE $4 OR symptoms ILIKE $5)"
	if got := w.String(); got != want {
		t.Fatalf("where =\n%s\nwant\n%s", got, want)
	}
	if len(w.args) != 5 {
		t.Fatalf("got %d args, want 5", len(w.args))
	}
	if w.args[2] != "%cough%" {
		t.Fatalf("search pattern = %v", w.args[2])
	}
}

func TestClassifyPgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrTransient},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrTransient},
		{"exclusion", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"}), ErrOverlap},
		{"deadline", context.DeadlineExceeded, ErrTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyPgError(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("classifyPgError = %v, want %v", got, tc.want)
			}
		})
	}

	plain := errors.New("syntax error")
	if got := classifyPgError(plain); got != plain {
		t.Fatalf("unexpected wrap of %v", got)
	}
	if classifyPgError(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}
