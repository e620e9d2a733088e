// ABOUTME: Wires configuration, storage, and the sync pipeline for every command
// ABOUTME: Commands open an App, use the pieces they need, and close it on exit
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/extract"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/lock"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/subscriptions"
	"github.com/harperreed/subzero/sync"
	"github.com/harperreed/subzero/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App holds the long-lived dependencies shared by commands.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Vault    *vault.Vault
	Locker   *lock.BadgerLocker
	Subs     *subscriptions.Service
	Sync     *sync.Orchestrator
	// Connector is nil when the OAuth client is not configured.
	Connector *sync.Connector
}

// openApp loads configuration from the root flags and opens the database.
// Production mode selects the JSON logger used by long-running servers.
func openApp(cmd *cobra.Command, production bool) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath, _ := cmd.Flags().GetString("db-path"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := logging.New(cfg.Log.Level, production)
	if err != nil {
		return nil, err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	database, err := db.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	locker, err := lock.Open(cfg.Sync.LockDir)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       database,
		Registry: prometheus.NewRegistry(),
		Vault:    vault.New(func() string { return cfg.Vault.Key }),
		Locker:   locker,
	}
	app.Metrics = metrics.New(app.Registry)

	if err := app.wire(cmd.Context()); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	rates, err := finance.NewStaticRates(a.Config.BaseCurrency)
	if err != nil {
		return config.Errorf("%v", err)
	}

	a.Subs = &subscriptions.Service{
		DB:           a.DB,
		Converter:    rates,
		BaseCurrency: rates.Base(),
		Logger:       a.Logger.Named("subscriptions"),
		Metrics:      a.Metrics,
	}

	strategy, err := extract.ParseStrategy(a.Config.Extract.Strategy)
	if err != nil {
		return config.Errorf("%v", err)
	}
	oracle, err := a.oracle(ctx)
	if err != nil {
		return err
	}
	adapter := extract.New(oracle)
	adapter.Strategy = strategy
	if a.Config.Extract.Threshold > 0 {
		adapter.Threshold = a.Config.Extract.Threshold
	}
	adapter.Logger = a.Logger.Named("extract")
	adapter.Metrics = a.Metrics

	a.Sync = &sync.Orchestrator{
		DB:        a.DB,
		Config:    a.Config,
		Vault:     a.Vault,
		Locker:    a.Locker,
		Extractor: adapter,
		Subs:      a.Subs,
		Logger:    a.Logger.Named("sync"),
		Metrics:   a.Metrics,
	}

	if oc, err := sync.OAuthConfig(a.Config); err == nil {
		a.Connector = &sync.Connector{
			DB:     a.DB,
			Vault:  a.Vault,
			OAuth:  oc,
			Logger: a.Logger.Named("connect"),
		}
	} else {
		a.Logger.Debug("mail connection disabled", zap.Error(err))
	}
	return nil
}

// oracle returns the Gemini oracle. Without an API key the server still
// starts, and every sync fails its preflight with the configuration error.
func (a *App) oracle(ctx context.Context) (extract.Oracle, error) {
	if err := a.Config.RequireGemini(); err != nil {
		return extract.Unavailable(err), nil
	}
	oracle, err := extract.NewGeminiOracle(ctx, a.Config.Gemini.APIKey, a.Config.Gemini.Model)
	if err != nil {
		return nil, err
	}
	return oracle, nil
}

func (a *App) Close() error {
	_ = a.Logger.Sync()
	if a.Locker != nil {
		_ = a.Locker.Close()
	}
	return a.DB.Close()
}
