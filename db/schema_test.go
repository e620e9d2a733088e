// ABOUTME: Tests for database schema creation
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestInitSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	for _, table := range []string{"users", "connected_mail_accounts", "subscriptions", "notifications", "sync_runs"} {
		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{
		"idx_mail_accounts_user",
		"idx_subscriptions_user",
		"idx_subscriptions_renewal",
		"idx_notifications_user",
		"idx_sync_runs_user",
	}
	for _, idx := range indexes {
		var indexName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&indexName)
		if err != nil {
			t.Errorf("Index %s not found: %v", idx, err)
		}
	}
}

func TestSchemaRejectsInvalidRows(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	insert := `INSERT INTO subscriptions (id, user_id, name, amount, billing_cycle, category, renewal_date, source, created_at, updated_at)
		VALUES (?, 'u1', 'X', ?, ?, ?, '2025-01-01', ?, '2025-01-01', '2025-01-01')`

	tests := []struct {
		name     string
		amount   float64
		cycle    string
		category string
		source   string
	}{
		{"zero amount", 0, "monthly", "Cloud", "manual"},
		{"weekly cycle", 10, "weekly", "Cloud", "manual"},
		{"unknown category", 10, "monthly", "Games", "manual"},
		{"unknown source", 10, "monthly", "Cloud", "import"},
	}
	for i, tt := range tests {
		if _, err := db.Exec(insert, i, tt.amount, tt.cycle, tt.category, tt.source); err == nil {
			t.Errorf("%s: expected constraint violation", tt.name)
		}
	}
}
