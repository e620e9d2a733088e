// ABOUTME: Subscription database operations
// ABOUTME: Handles per-user CRUD, re-detection stamps, and the renewal window query used by reminders
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/models"
)

const subscriptionColumns = `id, user_id, name, amount, billing_cycle, category, renewal_date, original_currency,
	amount_in_base, source, verified, reminder_sent_at, last_detected_at, created_at, updated_at`

func CreateSubscription(ctx context.Context, q Querier, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.RenewalDate = sub.RenewalDate.UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID.String(), sub.UserID, sub.Name, sub.Amount, sub.BillingCycle, sub.Category, sub.RenewalDate,
		sub.OriginalCurrency, sub.AmountInBase, sub.Source, sub.Verified,
		nullTime(sub.ReminderSentAt), nullTime(sub.LastDetectedAt), sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscription returns nil when the subscription does not exist or belongs to another user.
func GetSubscription(ctx context.Context, q Querier, userID string, id uuid.UUID) (*models.Subscription, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = ? AND user_id = ?
	`, id.String(), userID)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns a user's subscriptions ordered by renewal date.
func ListSubscriptions(ctx context.Context, q Querier, userID string) ([]models.Subscription, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ?
		ORDER BY renewal_date ASC, name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

// ListRenewingSubscriptions returns subscriptions of all users renewing in [from, to].
func ListRenewingSubscriptions(ctx context.Context, q Querier, from, to time.Time) ([]models.Subscription, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE renewal_date >= ? AND renewal_date <= ?
		ORDER BY user_id, renewal_date ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list renewing subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func UpdateSubscription(ctx context.Context, q Querier, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.RenewalDate = sub.RenewalDate.UTC()

	res, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET name = ?, amount = ?, billing_cycle = ?, category = ?, renewal_date = ?, original_currency = ?,
			amount_in_base = ?, verified = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`,
		sub.Name, sub.Amount, sub.BillingCycle, sub.Category, sub.RenewalDate, sub.OriginalCurrency,
		sub.AmountInBase, sub.Verified, sub.UpdatedAt, sub.ID.String(), sub.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSubscriptionVerified sets verified. It reports whether the subscription exists.
func MarkSubscriptionVerified(ctx context.Context, q Querier, userID string, id uuid.UUID) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET verified = 1, updated_at = ? WHERE id = ? AND user_id = ?
	`, time.Now().UTC(), id.String(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to verify subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TouchSubscriptionDetected records that a sync saw the subscription again.
func TouchSubscriptionDetected(ctx context.Context, q Querier, id uuid.UUID, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET last_detected_at = ?, updated_at = ? WHERE id = ?
	`, at, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to stamp subscription detection: %w", err)
	}
	return nil
}

// StampReminderSent sets reminder_sent_at on every listed subscription.
func StampReminderSent(ctx context.Context, q Querier, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, `
			UPDATE subscriptions SET reminder_sent_at = ? WHERE id = ?
		`, at, id.String()); err != nil {
			return fmt.Errorf("failed to stamp reminder: %w", err)
		}
	}
	return nil
}

// DeleteSubscription hard-deletes a subscription. It reports whether a row was deleted.
func DeleteSubscription(ctx context.Context, q Querier, userID string, id uuid.UUID) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE id = ? AND user_id = ?
	`, id.String(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func collectSubscriptions(rows *sql.Rows) ([]models.Subscription, error) {
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var reminderSent, lastDetected sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Name,
		&sub.Amount,
		&sub.BillingCycle,
		&sub.Category,
		&sub.RenewalDate,
		&sub.OriginalCurrency,
		&sub.AmountInBase,
		&sub.Source,
		&sub.Verified,
		&reminderSent,
		&lastDetected,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.ReminderSentAt = timePtr(reminderSent)
	sub.LastDetectedAt = timePtr(lastDetected)
	return sub, nil
}
