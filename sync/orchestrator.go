// ABOUTME: Sync orchestrator that runs a full mailbox sync for one user
// ABOUTME: Scans every connected account concurrently, extracts candidates, persists them, and records bookkeeping
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/lock"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/subscriptions"
	"github.com/harperreed/subzero/vault"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrNoAccounts means the user has no connected mailbox.
	ErrNoAccounts = errors.New("no connected mail accounts")
	// ErrInProgress means another sync holds the user's lock.
	ErrInProgress = errors.New("sync already in progress")
	// ErrLockLost means the user's lock expired before the run could persist.
	ErrLockLost = errors.New("sync lock expired before persisting")
)

const (
	defaultAccountTimeout = 60 * time.Second
	defaultLockTTL        = 10 * time.Minute
)

// Extractor turns pooled email texts into gated candidates.
type Extractor interface {
	Extract(ctx context.Context, texts []string) []models.Candidate
}

// preflighter is implemented by extractors that can report a missing
// configuration before any mailbox is touched.
type preflighter interface {
	Check() error
}

// ProviderFactory builds a mail provider for one decrypted bundle.
type ProviderFactory func(ctx context.Context, oc *oauth2.Config, bundle *models.CredentialBundle) (MailProvider, error)

// Options tune a single sync run. Zero values fall back to config.
type Options struct {
	Recency     Recency
	Query       string
	MaxMessages int64
}

// Result is the aggregate outcome of a sync.
type Result struct {
	Success         bool   `json:"success"`
	Added           int    `json:"added"`
	Scanned         int    `json:"scanned"`
	AccountsScanned int    `json:"accountsScanned"`
	Error           string `json:"error,omitempty"`
}

// Orchestrator wires the sync pipeline together.
type Orchestrator struct {
	DB          *sql.DB
	Config      *config.Config
	Vault       *vault.Vault
	Locker      lock.Locker
	Extractor   Extractor
	Subs        *subscriptions.Service
	NewProvider ProviderFactory
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) vault() *vault.Vault {
	if o.Vault != nil {
		return o.Vault
	}
	return vault.New(func() string { return o.Config.Vault.Key })
}

func (o *Orchestrator) newProvider(ctx context.Context, oc *oauth2.Config, bundle *models.CredentialBundle) (MailProvider, error) {
	if o.NewProvider != nil {
		return o.NewProvider(ctx, oc, bundle)
	}
	return NewGmailProvider(ctx, oc, bundle)
}

func (o *Orchestrator) fail(log *zap.Logger, result, msg string, accounts int) Result {
	o.Metrics.SyncRun(result)
	log.Warn("sync failed", zap.String("error", msg))
	return Result{Success: false, AccountsScanned: accounts, Error: msg}
}

// Sync runs the full pipeline for userID. It never returns a Go error;
// failures are reported through Result. Runs that found no accounts or a
// held lock write nothing; every other attempt lands in the run history.
func (o *Orchestrator) Sync(ctx context.Context, userID string, opts Options) Result {
	runID := ulid.Make().String()
	log := logging.OrNop(o.Logger).With(
		zap.String("run_id", runID),
		zap.String("user_id", userID),
	)

	started := o.now()
	result, record := o.run(ctx, log, userID, opts)
	if !record {
		return result
	}

	run := &db.SyncRun{
		ID:              runID,
		UserID:          userID,
		StartedAt:       started,
		FinishedAt:      o.now(),
		Success:         result.Success,
		AccountsScanned: result.AccountsScanned,
		EmailsScanned:   result.Scanned,
		Added:           result.Added,
	}
	if result.Error != "" {
		msg := result.Error
		run.ErrorMessage = &msg
	}
	if err := db.RecordSyncRun(context.WithoutCancel(ctx), o.DB, run); err != nil {
		log.Error("failed to record sync run", zap.Error(err))
	}
	return result
}

// run executes one sync. record is false when the run stopped before
// touching the store: no accounts, or another sync holds the lock.
func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, userID string, opts Options) (result Result, record bool) {
	accounts, err := db.ListMailAccounts(ctx, o.DB, userID)
	if err != nil {
		return o.fail(log, metrics.ResultFailed, fmt.Sprintf("failed to load accounts: %v", err), 0), true
	}
	if len(accounts) == 0 {
		return o.fail(log, metrics.ResultNoAccounts, ErrNoAccounts.Error(), 0), false
	}

	if err := o.vault().Check(); err != nil {
		return o.fail(log, metrics.ResultFailed, err.Error(), 0), true
	}
	oc, err := OAuthConfig(o.Config)
	if err != nil {
		return o.fail(log, metrics.ResultFailed, err.Error(), 0), true
	}
	if p, ok := o.Extractor.(preflighter); ok {
		if err := p.Check(); err != nil {
			return o.fail(log, metrics.ResultFailed, err.Error(), 0), true
		}
	}

	ttl := o.Config.Sync.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	var lease *lock.Lease
	if o.Locker != nil {
		lease, err = o.Locker.Acquire(ctx, lock.SyncKey(userID), ttl)
		if errors.Is(err, lock.ErrLocked) {
			return o.fail(log, metrics.ResultLocked, ErrInProgress.Error(), 0), false
		}
		if err != nil {
			return o.fail(log, metrics.ResultFailed, fmt.Sprintf("failed to acquire sync lock: %v", err), 0), true
		}
		defer lease.Release()
	}
	// Each phase can be slow, so the lease is pushed out before the next one.
	refresh := func() error {
		if lease == nil {
			return nil
		}
		return lease.Refresh(ttl)
	}

	query := opts.Query
	if query == "" {
		query = o.Config.Sync.Query
	}
	recency := opts.Recency
	if recency.WindowDays == 0 && recency.After.IsZero() {
		recency.WindowDays = o.Config.Sync.WindowDays
	}
	query = BuildQuery(query, recency)

	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = o.Config.Sync.MaxMessages
	}

	log.Info("starting sync", zap.Int("accounts", len(accounts)), zap.String("query", query))

	texts := o.scanAll(ctx, log, oc, accounts, query, maxMessages)
	o.Metrics.EmailsScanned(len(texts))

	var candidates []models.Candidate
	if len(texts) > 0 {
		if err := refresh(); err != nil {
			log.Warn("failed to refresh sync lock before extraction", zap.Error(err))
		}
		candidates = o.Extractor.Extract(ctx, texts)
	}

	if err := refresh(); err != nil {
		log.Error("sync lock lost before persisting", zap.Error(err))
		return o.fail(log, metrics.ResultLocked, ErrLockLost.Error(), len(accounts)), true
	}

	summary, err := o.Subs.PersistAll(ctx, userID, candidates)
	if err != nil {
		return o.fail(log, metrics.ResultFailed, fmt.Sprintf("failed to persist subscriptions: %v", err), len(accounts)), true
	}

	ids := make([]uuid.UUID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	if err := db.MarkMailAccountsSynced(ctx, o.DB, ids, o.now(), summary.Created); err != nil {
		log.Error("failed to record sync bookkeeping", zap.Error(err))
	}

	o.Metrics.SyncRun(metrics.ResultSuccess)
	log.Info("sync complete",
		zap.Int("scanned", len(texts)),
		zap.Int("candidates", len(candidates)),
		zap.Int("added", summary.Created),
		zap.Int("matched", summary.Matched),
		zap.Int("failed", summary.Failed))

	return Result{
		Success:         true,
		Added:           summary.Created,
		Scanned:         len(texts),
		AccountsScanned: len(accounts),
	}, true
}

func (o *Orchestrator) scanAll(ctx context.Context, log *zap.Logger, oc *oauth2.Config, accounts []models.ConnectedMailAccount, query string, maxMessages int64) []string {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		texts []string
	)
	for _, acct := range accounts {
		wg.Add(1)
		go func(acct models.ConnectedMailAccount) {
			defer wg.Done()
			found := o.scanAccount(ctx, log, oc, acct, query, maxMessages)
			mu.Lock()
			texts = append(texts, found...)
			mu.Unlock()
		}(acct)
	}
	wg.Wait()
	return texts
}

// scanAccount never fails the run: every error is logged, counted by stage,
// and the account contributes nothing.
func (o *Orchestrator) scanAccount(ctx context.Context, log *zap.Logger, oc *oauth2.Config, acct models.ConnectedMailAccount, query string, maxMessages int64) []string {
	timeout := o.Config.Sync.AccountTimeout
	if timeout <= 0 {
		timeout = defaultAccountTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log = log.With(zap.String("account", logging.MaskEmail(acct.Email)))

	bundle, err := o.vault().OpenBundle(acct.EncryptedCredentials)
	if err != nil {
		log.Warn("failed to decrypt credentials", zap.Error(err))
		o.Metrics.AccountFailed(metrics.StageDecrypt)
		return nil
	}

	provider, err := o.newProvider(scanCtx, oc, bundle)
	if err != nil {
		log.Warn("failed to build mail client", zap.Error(err))
		o.Metrics.AccountFailed(metrics.StageClient)
		return nil
	}

	scanner := &Scanner{MaxMessages: maxMessages, Logger: log, Metrics: o.Metrics}
	result, err := scanner.Scan(scanCtx, provider, acct, query)

	if result.Rotated != nil {
		o.persistRotation(context.WithoutCancel(ctx), log, acct, result.Rotated)
	}

	if err != nil {
		log.Warn("failed to scan mailbox", zap.Error(err))
		o.Metrics.AccountFailed(metrics.StageList)
		return nil
	}
	return result.Texts
}

func (o *Orchestrator) persistRotation(ctx context.Context, log *zap.Logger, acct models.ConnectedMailAccount, bundle *models.CredentialBundle) {
	sealed, err := o.vault().SealBundle(bundle)
	if err == nil {
		err = db.UpdateMailAccountCredentials(ctx, o.DB, acct.ID, sealed)
	}
	if err != nil {
		log.Error("failed to persist rotated credentials", zap.Error(err))
		o.Metrics.AccountFailed(metrics.StagePersist)
		return
	}
	o.Metrics.TokenRotated()
	log.Info("persisted rotated credentials", zap.String("access_token", logging.MaskToken(bundle.AccessToken)))
}

// AutoSync runs one incremental sync when the user's accounts are stale.
// The bool reports whether a sync ran.
func (o *Orchestrator) AutoSync(ctx context.Context, userID string) (Result, bool) {
	accounts, err := db.ListMailAccounts(ctx, o.DB, userID)
	if err != nil {
		logging.OrNop(o.Logger).Warn("failed to load accounts for auto-sync", zap.String("user_id", userID), zap.Error(err))
		return Result{}, false
	}

	staleness := o.Config.Sync.Staleness
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if !ShouldAutoSync(accounts, o.now(), staleness) {
		return Result{}, false
	}

	return o.Sync(ctx, userID, Options{Recency: AfterLastSync(accounts)}), true
}
