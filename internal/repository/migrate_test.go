package repository

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/pressly/goose/v3"

	"github.com/tasklist/tasklist/internal/repository/migrations"
)

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}

	want := []string{"00001_users.sql", "00002_tasks.sql"}
	if len(files) != len(want) {
		t.Fatalf("migrations = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("migration[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestMigrateDB_PropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return boom
	}

	err := migrateDB(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped goose error, got %v", err)
	}
	if gotDir != "." {
		t.Errorf("dir = %q, want .", gotDir)
	}
}
