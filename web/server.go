// ABOUTME: HTTP boundary for OAuth connect, sync triggers, burn forecasts, and cron reminders
// ABOUTME: Built on gin with prometheus metrics and health endpoints
package web

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/reminders"
	"github.com/harperreed/subzero/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Options wires a Server. Connector may be nil when OAuth is not configured.
type Options struct {
	DB           *sql.DB
	Config       *config.Config
	Orchestrator *sync.Orchestrator
	Connector    *sync.Connector
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
	Now          func() time.Time
}

type Server struct {
	db        *sql.DB
	cfg       *config.Config
	orch      *sync.Orchestrator
	connector *sync.Connector
	logger    *zap.Logger
	now       func() time.Time
	engine    *gin.Engine
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		db:        opts.DB,
		cfg:       opts.Config,
		orch:      opts.Orchestrator,
		connector: opts.Connector,
		logger:    logging.OrNop(opts.Logger),
		now:       opts.Now,
		engine:    gin.New(),
	}
	if s.cfg == nil {
		s.cfg = &config.Config{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	{
		api.GET("/gmail/connect", s.Connect)
		api.GET("/gmail/callback", s.Callback)
		api.POST("/sync/:userId", s.Sync)
		api.GET("/users/:userId/burn", s.Burn)
		api.GET("/cron/send-reminders", s.SendReminders)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	s.logger.Info("web server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Connect redirects the browser to the provider consent screen.
func (s *Server) Connect(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId parameter."})
		return
	}
	if s.connector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Mail connection is not configured."})
		return
	}
	c.Redirect(http.StatusFound, s.connector.AuthURL(userID))
}

// Callback finishes the OAuth exchange and lands the user back on the dashboard.
func (s *Server) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		s.logger.Warn("mail connection denied", zap.String("reason", reason))
		c.Redirect(http.StatusFound, "/dashboard?sync=denied")
		return
	}

	code, userID := c.Query("code"), c.Query("state")
	if code == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code or state from OAuth callback."})
		return
	}
	if s.connector == nil {
		c.Redirect(http.StatusFound, "/dashboard?sync=error")
		return
	}

	acct, err := s.connector.Complete(c.Request.Context(), userID, code)
	if err != nil {
		s.logger.Error("mail connection failed", zap.String("user_id", userID), zap.Error(err))
		c.Redirect(http.StatusFound, "/dashboard?sync=error")
		return
	}

	s.logger.Info("mail account connected",
		zap.String("user_id", userID),
		zap.String("email", logging.MaskEmail(acct.Email)),
	)
	c.Redirect(http.StatusFound, "/dashboard?sync=connected")
}

// Sync runs the pipeline for one user. The pipeline result is always
// returned with 200; only a missing orchestrator is a server error.
func (s *Server) Sync(c *gin.Context) {
	userID := c.Param("userId")
	if s.orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync is not configured"})
		return
	}
	ctx := c.Request.Context()

	if c.Query("auto") == "1" {
		result, ran := s.orch.AutoSync(ctx, userID)
		c.JSON(http.StatusOK, gin.H{"skipped": !ran, "result": result})
		return
	}

	var opts sync.Options
	if c.Query("after") == "last" {
		accounts, err := db.ListMailAccounts(ctx, s.db, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		opts.Recency = sync.AfterLastSync(accounts)
	}

	c.JSON(http.StatusOK, s.orch.Sync(ctx, userID, opts))
}

func (s *Server) Burn(c *gin.Context) {
	subs, err := db.ListSubscriptions(c.Request.Context(), s.db, c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, finance.NewForecast(subs, s.now()))
}

// SendReminders is the scheduler entry point guarded by the shared cron secret.
func (s *Server) SendReminders(c *gin.Context) {
	secret := s.cfg.Cron.Secret
	given := c.Query("secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	runner := &reminders.Runner{DB: s.db, Logger: s.logger}
	result, err := runner.Run(c.Request.Context(), s.now())
	if err != nil {
		s.logger.Error("reminder run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send reminders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"users":         result.Users,
		"notifications": result.Notifications,
		"stamped":       result.Stamped,
	})
}
