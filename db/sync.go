// ABOUTME: Database operations for the sync_runs table
// ABOUTME: Records the outcome of every mailbox sync for history and troubleshooting
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncRun is the stored outcome of one sync attempt.
type SyncRun struct {
	ID              string
	UserID          string
	StartedAt       time.Time
	FinishedAt      time.Time
	Success         bool
	AccountsScanned int
	EmailsScanned   int
	Added           int
	ErrorMessage    *string
}

const syncRunColumns = `id, user_id, started_at, finished_at, success, accounts_scanned, emails_scanned, added, error_message`

// RecordSyncRun stores a finished run.
func RecordSyncRun(ctx context.Context, q Querier, run *SyncRun) error {
	var errorMsg sql.NullString
	if run.ErrorMessage != nil {
		errorMsg = sql.NullString{String: *run.ErrorMessage, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_runs (`+syncRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.UserID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Success,
		run.AccountsScanned, run.EmailsScanned, run.Added, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns a user's most recent runs, newest first.
func ListSyncRuns(ctx context.Context, q Querier, userID string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+syncRunColumns+`
		FROM sync_runs
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// LastSyncRun returns the user's latest run, or nil when none exists.
func LastSyncRun(ctx context.Context, q Querier, userID string) (*SyncRun, error) {
	run, err := scanSyncRun(q.QueryRowContext(ctx, `
		SELECT `+syncRunColumns+`
		FROM sync_runs
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return run, nil
}

func scanSyncRun(row rowScanner) (*SyncRun, error) {
	var run SyncRun
	var errorMessage sql.NullString

	err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Success,
		&run.AccountsScanned,
		&run.EmailsScanned,
		&run.Added,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	return &run, nil
}
