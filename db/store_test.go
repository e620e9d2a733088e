// ABOUTME: Tests for account, subscription, notification, and user operations
// ABOUTME: Runs against a temporary SQLite database per test
package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSub(userID, name string, amount float64, renewal time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:           userID,
		Name:             name,
		Amount:           amount,
		BillingCycle:     models.CycleMonthly,
		Category:         models.CategorySoftware,
		RenewalDate:      renewal,
		OriginalCurrency: "INR",
		AmountInBase:     amount,
		Source:           models.SourceManual,
		Verified:         true,
	}
}

func TestUpsertMailAccount_ReplacesCredentialsByAddress(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := &models.ConnectedMailAccount{UserID: "u1", Email: "a@example.com", EncryptedCredentials: "v1"}
	require.NoError(t, UpsertMailAccount(ctx, db, first))
	require.NotEqual(t, uuid.Nil, first.ID)

	second := &models.ConnectedMailAccount{UserID: "u1", Email: "a@example.com", EncryptedCredentials: "v2"}
	require.NoError(t, UpsertMailAccount(ctx, db, second))

	assert.Equal(t, first.ID, second.ID, "upsert should keep the original row")
	assert.Equal(t, "v2", second.EncryptedCredentials)

	accounts, err := ListMailAccounts(ctx, db, "u1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestListMailAccounts_ScopedAndOrdered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, email := range []string{"first@example.com", "second@example.com"} {
		require.NoError(t, UpsertMailAccount(ctx, db, &models.ConnectedMailAccount{UserID: "u1", Email: email, EncryptedCredentials: "x"}))
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, UpsertMailAccount(ctx, db, &models.ConnectedMailAccount{UserID: "u2", Email: "other@example.com", EncryptedCredentials: "x"}))

	accounts, err := ListMailAccounts(ctx, db, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "first@example.com", accounts[0].Email)
	assert.Equal(t, "second@example.com", accounts[1].Email)
	assert.Nil(t, accounts[0].LastSyncedAt)
}

func TestMarkMailAccountsSynced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	acct := &models.ConnectedMailAccount{UserID: "u1", Email: "a@example.com", EncryptedCredentials: "x"}
	require.NoError(t, UpsertMailAccount(ctx, db, acct))

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, MarkMailAccountsSynced(ctx, db, []uuid.UUID{acct.ID}, at, 3))

	got, err := GetMailAccountByEmail(ctx, db, "u1", "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(at))
	assert.Equal(t, 3, got.LastSyncCount)
}

func TestUpdateMailAccountCredentials(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	acct := &models.ConnectedMailAccount{UserID: "u1", Email: "a@example.com", EncryptedCredentials: "old"}
	require.NoError(t, UpsertMailAccount(ctx, db, acct))
	require.NoError(t, UpdateMailAccountCredentials(ctx, db, acct.ID, "new"))

	got, err := GetMailAccountByEmail(ctx, db, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got.EncryptedCredentials)

	assert.Error(t, UpdateMailAccountCredentials(ctx, db, uuid.New(), "x"))
}

func TestDeleteMailAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, UpsertMailAccount(ctx, db, &models.ConnectedMailAccount{UserID: "u1", Email: "a@example.com", EncryptedCredentials: "x"}))

	deleted, err := DeleteMailAccount(ctx, db, "u2", "a@example.com")
	require.NoError(t, err)
	assert.False(t, deleted, "other users cannot delete the account")

	deleted, err = DeleteMailAccount(ctx, db, "u1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, deleted)

	accounts, err := ListMailAccounts(ctx, db, "u1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSubscriptionCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	renewal := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	sub := newSub("u1", "Netflix", 649, renewal)
	require.NoError(t, CreateSubscription(ctx, db, sub))

	got, err := GetSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, 649.0, got.Amount)
	assert.True(t, got.RenewalDate.Equal(renewal))
	assert.True(t, got.Verified)
	assert.Nil(t, got.ReminderSentAt)

	other, err := GetSubscription(ctx, db, "u2", sub.ID)
	require.NoError(t, err)
	assert.Nil(t, other, "subscriptions are scoped to their owner")

	got.Amount = 799
	require.NoError(t, UpdateSubscription(ctx, db, got))
	got, err = GetSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 799.0, got.Amount)

	deleted, err := DeleteSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = GetSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkSubscriptionVerified(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub := newSub("u1", "Figma", 1200, time.Now().AddDate(0, 1, 0))
	sub.Source = models.SourceAIDetected
	sub.Verified = false
	require.NoError(t, CreateSubscription(ctx, db, sub))

	ok, err := MarkSubscriptionVerified(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := GetSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	ok, err = MarkSubscriptionVerified(ctx, db, "u1", uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListRenewingSubscriptions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	inWindow := newSub("u1", "Soon", 100, now.AddDate(0, 0, 3))
	later := newSub("u1", "Later", 100, now.AddDate(0, 0, 20))
	past := newSub("u2", "Past", 100, now.AddDate(0, 0, -1))
	otherUser := newSub("u2", "Also soon", 100, now.AddDate(0, 0, 7))
	for _, s := range []*models.Subscription{inWindow, later, past, otherUser} {
		require.NoError(t, CreateSubscription(ctx, db, s))
	}

	subs, err := ListRenewingSubscriptions(ctx, db, now, now.AddDate(0, 0, 7))
	require.NoError(t, err)

	var names []string
	for _, s := range subs {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Soon", "Also soon"}, names)
}

func TestTouchAndStamp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	sub := newSub("u1", "Notion", 400, at.AddDate(0, 0, 10))
	require.NoError(t, CreateSubscription(ctx, db, sub))

	require.NoError(t, TouchSubscriptionDetected(ctx, db, sub.ID, at))
	require.NoError(t, StampReminderSent(ctx, db, []uuid.UUID{sub.ID}, at))

	got, err := GetSubscription(ctx, db, "u1", sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastDetectedAt)
	require.NotNil(t, got.ReminderSentAt)
	assert.True(t, got.LastDetectedAt.Equal(at))
	assert.True(t, got.ReminderSentAt.Equal(at))
}

func TestNotifications(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	subID := uuid.New()
	days := 3
	n := &models.Notification{
		UserID:         "u1",
		Title:          "Subscription Renewal Alert",
		Message:        "Your Netflix subscription is renewing in 3 days.",
		Type:           models.NotificationRenewal,
		SubscriptionID: &subID,
		Amount:         649,
		DaysLeft:       &days,
	}
	require.NoError(t, CreateNotification(ctx, db, n))

	list, err := ListNotifications(ctx, db, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n.Message, list[0].Message)
	require.NotNil(t, list[0].SubscriptionID)
	assert.Equal(t, subID, *list[0].SubscriptionID)
	require.NotNil(t, list[0].DaysLeft)
	assert.Equal(t, 3, *list[0].DaysLeft)
	assert.False(t, list[0].Read)
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, EnsureUser(ctx, db, "u1", "first@example.com"))
	require.NoError(t, EnsureUser(ctx, db, "u1", "second@example.com"))

	u, err := GetUser(ctx, db, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "first@example.com", u.Email)
	assert.True(t, u.NotifyEmail)
	assert.True(t, u.NotifyDashboard)

	u.FirstName = "Ada"
	u.NotifyDashboard = false
	require.NoError(t, SaveUser(ctx, db, u))

	u, err = GetUser(ctx, db, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)
	assert.False(t, u.NotifyDashboard)

	missing, err := GetUser(ctx, db, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
