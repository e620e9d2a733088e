// ABOUTME: Mailbox sync and forecast MCP tool handlers
// ABOUTME: Implements sync, account, notification, and forecast tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SyncHandlers struct {
	db   *sql.DB
	orch *sync.Orchestrator
	now  func() time.Time
}

func NewSyncHandlers(database *sql.DB, orch *sync.Orchestrator) *SyncHandlers {
	return &SyncHandlers{db: database, orch: orch, now: time.Now}
}

type SyncSubscriptionsInput struct {
	UserID      string `json:"user_id" jsonschema:"User ID (required)"`
	Incremental bool   `json:"incremental,omitempty" jsonschema:"Only scan mail received since the last sync"`
	WindowDays  int    `json:"window_days,omitempty" jsonschema:"Days of mail to scan for a full sync (default 30)"`
}

func (h *SyncHandlers) SyncSubscriptions(ctx context.Context, request *mcp.CallToolRequest, input SyncSubscriptionsInput) (*mcp.CallToolResult, sync.Result, error) {
	if input.UserID == "" {
		return nil, sync.Result{}, fmt.Errorf("user_id is required")
	}
	if input.WindowDays < 0 {
		return nil, sync.Result{}, fmt.Errorf("window_days must not be negative")
	}

	opts := sync.Options{Recency: sync.Recency{WindowDays: input.WindowDays}}
	if input.Incremental {
		accounts, err := db.ListMailAccounts(ctx, h.db, input.UserID)
		if err != nil {
			return nil, sync.Result{}, fmt.Errorf("failed to load accounts: %w", err)
		}
		opts.Recency = sync.AfterLastSync(accounts)
	}

	return nil, h.orch.Sync(ctx, input.UserID, opts), nil
}

type ListAccountsInput struct {
	UserID string `json:"user_id" jsonschema:"User ID (required)"`
}

type AccountOutput struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	ConnectedAt   string  `json:"connected_at"`
	LastSyncedAt  *string `json:"last_synced_at,omitempty"`
	LastSyncCount int     `json:"last_sync_count"`
}

type SyncRunOutput struct {
	StartedAt string  `json:"started_at"`
	Success   bool    `json:"success"`
	Added     int     `json:"added"`
	Error     *string `json:"error,omitempty"`
}

type ListAccountsOutput struct {
	Accounts  []AccountOutput `json:"accounts"`
	NeedsSync bool            `json:"needs_sync"`
	LastRun   *SyncRunOutput  `json:"last_run,omitempty"`
}

func accountToOutput(a *models.ConnectedMailAccount) AccountOutput {
	out := AccountOutput{
		ID:            a.ID.String(),
		Email:         a.Email,
		ConnectedAt:   a.ConnectedAt.Format(time.RFC3339),
		LastSyncCount: a.LastSyncCount,
	}
	if a.LastSyncedAt != nil {
		v := a.LastSyncedAt.Format(time.RFC3339)
		out.LastSyncedAt = &v
	}
	return out
}

func (h *SyncHandlers) ListAccounts(ctx context.Context, request *mcp.CallToolRequest, input ListAccountsInput) (*mcp.CallToolResult, ListAccountsOutput, error) {
	if input.UserID == "" {
		return nil, ListAccountsOutput{}, fmt.Errorf("user_id is required")
	}

	accounts, err := db.ListMailAccounts(ctx, h.db, input.UserID)
	if err != nil {
		return nil, ListAccountsOutput{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	out := ListAccountsOutput{
		Accounts:  make([]AccountOutput, 0, len(accounts)),
		NeedsSync: sync.ShouldAutoSync(accounts, h.now(), sync.DefaultStaleness),
	}
	for i := range accounts {
		out.Accounts = append(out.Accounts, accountToOutput(&accounts[i]))
	}

	run, err := db.LastSyncRun(ctx, h.db, input.UserID)
	if err != nil {
		return nil, ListAccountsOutput{}, fmt.Errorf("failed to load last sync run: %w", err)
	}
	if run != nil {
		out.LastRun = &SyncRunOutput{
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Success:   run.Success,
			Added:     run.Added,
			Error:     run.ErrorMessage,
		}
	}
	return nil, out, nil
}

type ListNotificationsInput struct {
	UserID     string `json:"user_id" jsonschema:"User ID (required)"`
	UnreadOnly bool   `json:"unread_only,omitempty" jsonschema:"Only return unread notifications"`
}

type ListNotificationsOutput struct {
	Notifications []models.Notification `json:"notifications"`
}

func (h *SyncHandlers) ListNotifications(ctx context.Context, request *mcp.CallToolRequest, input ListNotificationsInput) (*mcp.CallToolResult, ListNotificationsOutput, error) {
	if input.UserID == "" {
		return nil, ListNotificationsOutput{}, fmt.Errorf("user_id is required")
	}

	all, err := db.ListNotifications(ctx, h.db, input.UserID)
	if err != nil {
		return nil, ListNotificationsOutput{}, err
	}

	out := ListNotificationsOutput{Notifications: make([]models.Notification, 0, len(all))}
	for _, n := range all {
		if input.UnreadOnly && n.Read {
			continue
		}
		out.Notifications = append(out.Notifications, n)
	}
	return nil, out, nil
}

type BurnForecastInput struct {
	UserID string `json:"user_id" jsonschema:"User ID (required)"`
}

func (h *SyncHandlers) BurnForecast(ctx context.Context, request *mcp.CallToolRequest, input BurnForecastInput) (*mcp.CallToolResult, finance.Forecast, error) {
	if input.UserID == "" {
		return nil, finance.Forecast{}, fmt.Errorf("user_id is required")
	}

	subs, err := db.ListSubscriptions(ctx, h.db, input.UserID)
	if err != nil {
		return nil, finance.Forecast{}, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return nil, finance.NewForecast(subs, h.now()), nil
}
