// ABOUTME: Connected mail account database operations
// ABOUTME: Handles upsert-by-address on connect, credential rotation, sync bookkeeping, and disconnect
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/models"
)

const accountColumns = `id, user_id, email, encrypted_credentials, connected_at, updated_at, last_synced_at, last_sync_count`

// UpsertMailAccount inserts an account or replaces the credentials of the
// existing (user, email) pair. acct.ID is set to the stored row's id.
func UpsertMailAccount(ctx context.Context, q Querier, acct *models.ConnectedMailAccount) error {
	now := time.Now().UTC()
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO connected_mail_accounts (id, user_id, email, encrypted_credentials, connected_at, updated_at, last_sync_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(user_id, email) DO UPDATE SET
			encrypted_credentials = excluded.encrypted_credentials,
			updated_at = excluded.updated_at
	`, acct.ID.String(), acct.UserID, acct.Email, acct.EncryptedCredentials, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert mail account: %w", err)
	}

	stored, err := GetMailAccountByEmail(ctx, q, acct.UserID, acct.Email)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("failed to reload mail account %s", acct.Email)
	}
	*acct = *stored
	return nil
}

func GetMailAccountByEmail(ctx context.Context, q Querier, userID, email string) (*models.ConnectedMailAccount, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM connected_mail_accounts
		WHERE user_id = ? AND email = ?
	`, userID, email)

	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mail account: %w", err)
	}
	return acct, nil
}

// ListMailAccounts returns a user's accounts, oldest connection first.
func ListMailAccounts(ctx context.Context, q Querier, userID string) ([]models.ConnectedMailAccount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM connected_mail_accounts
		WHERE user_id = ?
		ORDER BY connected_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.ConnectedMailAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mail account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// UpdateMailAccountCredentials stores a re-encrypted credential bundle.
func UpdateMailAccountCredentials(ctx context.Context, q Querier, id uuid.UUID, encrypted string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE connected_mail_accounts
		SET encrypted_credentials = ?, updated_at = ?
		WHERE id = ?
	`, encrypted, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update mail account credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mail account %s not found", id)
	}
	return nil
}

// MarkMailAccountsSynced stamps the sync time and count on every listed account.
func MarkMailAccountsSynced(ctx context.Context, db *sql.DB, ids []uuid.UUID, at time.Time, count int) error {
	if len(ids) == 0 {
		return nil
	}
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `
				UPDATE connected_mail_accounts
				SET last_synced_at = ?, last_sync_count = ?, updated_at = ?
				WHERE id = ?
			`, at, count, at, id.String())
			if err != nil {
				return fmt.Errorf("failed to mark mail account synced: %w", err)
			}
		}
		return nil
	})
}

// DeleteMailAccount removes a user's account by address. It reports whether a row was deleted.
func DeleteMailAccount(ctx context.Context, q Querier, userID, email string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM connected_mail_accounts WHERE user_id = ? AND email = ?
	`, userID, email)
	if err != nil {
		return false, fmt.Errorf("failed to delete mail account: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.ConnectedMailAccount, error) {
	acct := &models.ConnectedMailAccount{}
	var lastSynced sql.NullTime

	err := row.Scan(
		&acct.ID,
		&acct.UserID,
		&acct.Email,
		&acct.EncryptedCredentials,
		&acct.ConnectedAt,
		&acct.UpdatedAt,
		&lastSynced,
		&acct.LastSyncCount,
	)
	if err != nil {
		return nil, err
	}
	acct.LastSyncedAt = timePtr(lastSynced)
	return acct, nil
}
