package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitializeDatabaseIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := InitializeDatabase(db); err != nil {
		t.Fatalf("First initialization failed: %v", err)
	}
	if err := InitializeDatabase(db); err != nil {
		t.Fatalf("Second initialization failed: %v", err)
	}

	status, err := NewMigrationManager(db).GetMigrationStatus()
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if len(status.Pending) != 0 {
		t.Errorf("Expected no pending migrations, got %d", len(status.Pending))
	}
	if len(status.Applied) != len(status.Available) || len(status.Applied) == 0 {
		t.Errorf("Expected all %d migrations applied, got %d", len(status.Available), len(status.Applied))
	}

	for _, table := range []string{"logs", "logs_fts", "index_metadata"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsFromPath(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_second.sql": "CREATE TABLE second (id INTEGER);",
		"001_first.sql":  "CREATE TABLE first (id INTEGER);",
		"notes.txt":      "ignored",
		"bad_name.sql":   "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	db := openTestDB(t)
	m := NewMigrationManagerFromPath(db, dir)

	available, err := m.GetAvailableMigrations()
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(available) != 2 || available[0].Name != "first" || available[1].Version != 2 {
		t.Fatalf("Unexpected migrations: %+v", available)
	}

	applied, err := m.ApplyPendingMigrations()
	if err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	if applied != 2 {
		t.Errorf("Expected 2 applied migrations, got %d", applied)
	}
	if applied, _ := m.ApplyPendingMigrations(); applied != 0 {
		t.Errorf("Expected nothing to apply on second run, got %d", applied)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABLE ok (id INTEGER); NOT SQL;"), 0o644); err != nil {
		t.Fatalf("Failed to write migration: %v", err)
	}

	db := openTestDB(t)
	m := NewMigrationManagerFromPath(db, dir)
	if _, err := m.ApplyPendingMigrations(); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	pending, err := m.GetPendingMigrations()
	if err != nil {
		t.Fatalf("Failed to get pending migrations: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected the broken migration to stay pending, got %d", len(pending))
	}
}
