// ABOUTME: Renewal reminder scan that writes dashboard notifications for upcoming renewals
// ABOUTME: Groups due subscriptions per user and stamps them so a reminder is not repeated within the window
package reminders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WindowDays is both the look-ahead for renewals and the quiet period
// between two reminders for the same subscription.
const WindowDays = 7

// Title of every renewal notification.
const Title = "Subscription Renewal Alert"

// Result counts what a reminder run did.
type Result struct {
	Users         int `json:"users"`
	Notifications int `json:"notifications"`
	Stamped       int `json:"stamped"`
}

// Runner scans for due renewals.
type Runner struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// Run scans database for renewals due after now with a default runner.
func Run(ctx context.Context, database *sql.DB, now time.Time) (Result, error) {
	return (&Runner{DB: database}).Run(ctx, now)
}

// Run selects subscriptions renewing within the window that were not
// reminded recently and handles each user in its own transaction.
func (r *Runner) Run(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	log := logging.OrNop(r.Logger)

	window := time.Duration(WindowDays) * 24 * time.Hour
	renewing, err := db.ListRenewingSubscriptions(ctx, r.DB, now, now.Add(window))
	if err != nil {
		return result, err
	}

	quietSince := now.Add(-window)
	var order []string
	byUser := map[string][]models.Subscription{}
	for _, sub := range renewing {
		if sub.ReminderSentAt != nil && !sub.ReminderSentAt.Before(quietSince) {
			continue
		}
		if _, ok := byUser[sub.UserID]; !ok {
			order = append(order, sub.UserID)
		}
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	for _, userID := range order {
		subs := byUser[userID]
		notified, err := r.remindUser(ctx, userID, subs, now)
		if err != nil {
			log.Error("failed to send reminders", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if notified < 0 {
			log.Debug("skipping reminders for user without profile", zap.String("user_id", userID))
			continue
		}
		result.Users++
		result.Notifications += notified
		result.Stamped += len(subs)
	}

	log.Info("reminder run complete",
		zap.Int("users", result.Users),
		zap.Int("notifications", result.Notifications),
		zap.Int("stamped", result.Stamped))
	return result, nil
}

// remindUser returns the number of notifications written, or -1 when the
// user has no profile.
func (r *Runner) remindUser(ctx context.Context, userID string, subs []models.Subscription, now time.Time) (int, error) {
	user, err := db.GetUser(ctx, r.DB, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return -1, nil
	}

	notified := 0
	err = db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if user.NotifyDashboard {
			n := BuildNotification(userID, subs, now)
			if err := db.CreateNotification(ctx, tx, n); err != nil {
				return err
			}
			notified = 1
		}

		ids := make([]uuid.UUID, 0, len(subs))
		for _, s := range subs {
			ids = append(ids, s.ID)
		}
		return db.StampReminderSent(ctx, tx, ids, now)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record reminders: %w", err)
	}
	return notified, nil
}

// BuildNotification renders the dashboard notification for one user's due
// subscriptions. A single subscription is named and linked.
func BuildNotification(userID string, subs []models.Subscription, now time.Time) *models.Notification {
	total := decimal.Zero
	for _, s := range subs {
		total = total.Add(decimal.NewFromFloat(s.BaseAmount()))
	}
	amount, _ := total.Round(2).Float64()

	n := &models.Notification{
		UserID:    userID,
		Title:     Title,
		Type:      models.NotificationRenewal,
		Link:      "/dashboard",
		Amount:    amount,
		CreatedAt: now,
	}

	if len(subs) == 1 {
		days := finance.DaysUntil(now, subs[0].RenewalDate)
		id := subs[0].ID
		n.Message = fmt.Sprintf("Your %s subscription is renewing in %d days.", subs[0].Name, days)
		n.SubscriptionID = &id
		n.DaysLeft = &days
		return n
	}

	n.Message = fmt.Sprintf("You have %d subscriptions renewing in the next %d days.", len(subs), WindowDays)
	return n
}
