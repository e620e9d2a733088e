// ABOUTME: Database schema definitions for users, mail accounts, subscriptions, notifications, and sync runs
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	notify_email INTEGER NOT NULL DEFAULT 1,
	notify_dashboard INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS connected_mail_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	email TEXT NOT NULL,
	encrypted_credentials TEXT NOT NULL,
	connected_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_synced_at DATETIME,
	last_sync_count INTEGER NOT NULL DEFAULT 0 CHECK(last_sync_count >= 0),
	UNIQUE(user_id, email)
);

CREATE INDEX IF NOT EXISTS idx_mail_accounts_user ON connected_mail_accounts(user_id);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	amount REAL NOT NULL CHECK(amount > 0),
	billing_cycle TEXT NOT NULL CHECK(billing_cycle IN ('monthly', 'yearly')),
	category TEXT NOT NULL CHECK(category IN ('Streaming', 'Software', 'Cloud', 'Education', 'Utilities', 'Others')),
	renewal_date DATETIME NOT NULL,
	original_currency TEXT NOT NULL DEFAULT 'INR',
	amount_in_base REAL NOT NULL DEFAULT 0,
	source TEXT NOT NULL CHECK(source IN ('manual', 'ai-detected')),
	verified INTEGER NOT NULL DEFAULT 0,
	reminder_sent_at DATETIME,
	last_detected_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_renewal ON subscriptions(renewal_date);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('renewal', 'saving', 'warning', 'info')),
	read INTEGER NOT NULL DEFAULT 0,
	link TEXT,
	subscription_id TEXT,
	amount REAL NOT NULL DEFAULT 0,
	days_left INTEGER,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	accounts_scanned INTEGER NOT NULL DEFAULT 0,
	emails_scanned INTEGER NOT NULL DEFAULT 0,
	added INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_user ON sync_runs(user_id, started_at DESC);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
