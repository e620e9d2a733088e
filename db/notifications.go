// ABOUTME: Dashboard notification database operations
// ABOUTME: Creates and lists per-user notifications written by the reminder scan
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/models"
)

func CreateNotification(ctx context.Context, q Querier, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var subID sql.NullString
	if n.SubscriptionID != nil {
		subID = sql.NullString{String: n.SubscriptionID.String(), Valid: true}
	}
	var daysLeft sql.NullInt64
	if n.DaysLeft != nil {
		daysLeft = sql.NullInt64{Int64: int64(*n.DaysLeft), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, read, link, subscription_id, amount, days_left, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID.String(), n.UserID, n.Title, n.Message, n.Type, n.Read, n.Link, subID, n.Amount, daysLeft, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(ctx context.Context, q Querier, userID string) ([]models.Notification, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, title, message, type, read, link, subscription_id, amount, days_left, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var link, subID sql.NullString
		var daysLeft sql.NullInt64

		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &link, &subID, &n.Amount, &daysLeft, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Link = link.String
		if subID.Valid {
			if id, err := uuid.Parse(subID.String); err == nil {
				n.SubscriptionID = &id
			}
		}
		if daysLeft.Valid {
			d := int(daysLeft.Int64)
			n.DaysLeft = &d
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
