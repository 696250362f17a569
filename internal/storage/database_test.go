package storage

import (
	"testing"

	"adminbot/internal/config"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: ":memory:"},
	}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	// twice, to check the statements are idempotent
	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite3"); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		t.Fatalf("query audit_events: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty table, got %d rows", n)
	}
}

func TestOpenErrors(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3":  {},
		"postgres": {DSN: "x"},
	}}
	if _, err := Open("mysql", cfg); err == nil {
		t.Fatalf("expected error for missing config entry")
	}
	if _, err := Open("sqlite3", cfg); err == nil {
		t.Fatalf("expected error for empty sqlite dsn")
	}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if err := Migrate(nil, "postgres"); err == nil {
		t.Fatalf("expected migrate error for unsupported driver")
	}
}
