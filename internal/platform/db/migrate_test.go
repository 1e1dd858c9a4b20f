package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
)

func testFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	fsys := testFS(map[string]string{
		"001_core.sql":    "CREATE TABLE claims (id UUID PRIMARY KEY);",
		"002_denials.sql": "CREATE TABLE claim_denials (id UUID PRIMARY KEY);",
		"003_reports.sql": "CREATE TABLE report_definitions (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, fsys, zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE claims (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortsNumerically(t *testing.T) {
	fsys := testFS(map[string]string{
		"10_late.sql":   "SELECT 10;",
		"2_early.sql":   "SELECT 2;",
		"001_first.sql": "SELECT 1;",
	})

	migrations, err := NewMigrator(nil, fsys, zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsUnnumbered(t *testing.T) {
	fsys := testFS(map[string]string{
		"001_core.sql": "SELECT 1;",
		"README.md":    "notes",
		"seed.sql":     "SELECT 0;",
		"abc_x.sql":    "SELECT 0;",
	})

	migrations, err := NewMigrator(nil, fsys, zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := testFS(map[string]string{
		"001_core.sql": "SELECT 1;",
		"1_again.sql":  "SELECT 1;",
	})

	if _, err := NewMigrator(nil, fsys, zerolog.Nop()).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}, zerolog.Nop()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_core.sql"},
		{Version: 2, Name: "002_denials.sql"},
		{Version: 3, Name: "003_reports.sql"},
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	pending := Pending(migrations, applied)
	if len(pending) != 2 || pending[0].Version != 2 || pending[1].Version != 3 {
		t.Errorf("unexpected pending set: %+v", pending)
	}

	statuses := BuildStatus(migrations, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected first migration applied at %s, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected second migration pending, got %+v", statuses[1])
	}
}
