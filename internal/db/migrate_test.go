package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsCarryOverlapConstraint(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read %s: %v", names[0], err)
	}
	sql := string(body)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS appointments",
		"appointments_no_pet_overlap",
		"tstzrange(scheduled_date, scheduled_end, '[)')",
		"status IN ('pending', 'confirmed')",
		"CREATE TABLE IF NOT EXISTS scheduling_settings",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("migration %s missing %q", names[0], want)
		}
	}
}
