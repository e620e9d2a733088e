// ABOUTME: User profile database operations
// ABOUTME: Stores names, contact address, and notification preferences
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/subzero/models"
)

// EnsureUser creates a profile with default preferences if none exists.
// An existing profile only gains an email when it had none.
func EnsureUser(ctx context.Context, q Querier, userID, email string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, notify_email, notify_dashboard, created_at)
		VALUES (?, ?, 1, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN users.email = '' THEN excluded.email ELSE users.email END
	`, userID, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func SaveUser(ctx context.Context, q Querier, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, notify_email, notify_dashboard, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			notify_email = excluded.notify_email,
			notify_dashboard = excluded.notify_dashboard
	`, u.ID, u.FirstName, u.LastName, u.Email, u.NotifyEmail, u.NotifyDashboard, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser returns nil when the user has no profile.
func GetUser(ctx context.Context, q Querier, userID string) (*models.User, error) {
	u := &models.User{}
	err := q.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, notify_email, notify_dashboard, created_at
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.NotifyEmail, &u.NotifyDashboard, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
