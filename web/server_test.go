// ABOUTME: Tests for the HTTP boundary using httptest
// ABOUTME: Covers OAuth redirects, sync triggers, burn forecasts, the cron secret, and metrics
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/subscriptions"
	"github.com/harperreed/subzero/sync"
	"github.com/harperreed/subzero/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	db       *sql.DB
	subs     *subscriptions.Service
	registry *prometheus.Registry
	server   *Server
}

// fakeGoogle answers token exchanges for "good-code" and userinfo lookups.
func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "me@example.com"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, withConnector bool) *testServer {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	key, err := vault.GenerateKey()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Vault.Key = key
	cfg.Cron.Secret = "s3cret"

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	subs := subscriptions.NewService(database)
	subs.Now = func() time.Time { return testNow }

	opts := Options{
		DB:     database,
		Config: cfg,
		Orchestrator: &sync.Orchestrator{
			DB:      database,
			Config:  cfg,
			Subs:    subs,
			Metrics: m,
			Now:     func() time.Time { return testNow },
		},
		Gatherer: registry,
		Now:      func() time.Time { return testNow },
	}

	if withConnector {
		google := fakeGoogle(t)
		opts.Connector = &sync.Connector{
			DB:    database,
			Vault: vault.New(func() string { return key }),
			OAuth: &oauth2.Config{
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/api/gmail/callback",
				Scopes:       sync.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  google.URL + "/auth",
					TokenURL: google.URL + "/token",
				},
			},
			APIOptions: []option.ClientOption{option.WithEndpoint(google.URL + "/")},
		}
	}

	return &testServer{db: database, subs: subs, registry: registry, server: NewServer(opts)}
}

func (ts *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subzero_emails_scanned_total")
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name      string
		connector bool
		target    string
		wantCode  int
	}{
		{name: "missing user", connector: true, target: "/api/gmail/connect", wantCode: http.StatusBadRequest},
		{name: "not configured", connector: false, target: "/api/gmail/connect?userId=u1", wantCode: http.StatusServiceUnavailable},
		{name: "redirects to consent", connector: true, target: "/api/gmail/connect?userId=u1", wantCode: http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.connector)
			rec := ts.do(t, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode == http.StatusFound {
				loc, err := url.Parse(rec.Header().Get("Location"))
				require.NoError(t, err)
				assert.Equal(t, "/auth", loc.Path)
				assert.Equal(t, "u1", loc.Query().Get("state"))
				assert.Equal(t, "offline", loc.Query().Get("access_type"))
			}
		})
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		wantCode     int
		wantLocation string
	}{
		{name: "denied", target: "/api/gmail/callback?error=access_denied&state=u1", wantCode: http.StatusFound, wantLocation: "/dashboard?sync=denied"},
		{name: "missing code", target: "/api/gmail/callback?state=u1", wantCode: http.StatusBadRequest},
		{name: "missing state", target: "/api/gmail/callback?code=good-code", wantCode: http.StatusBadRequest},
		{name: "exchange fails", target: "/api/gmail/callback?code=bad-code&state=u1", wantCode: http.StatusFound, wantLocation: "/dashboard?sync=error"},
		{name: "connected", target: "/api/gmail/callback?code=good-code&state=u1", wantCode: http.StatusFound, wantLocation: "/dashboard?sync=connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, true)
			rec := ts.do(t, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
		})
	}
}

func TestCallbackStoresAccount(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.do(t, http.MethodGet, "/api/gmail/callback?code=good-code&state=u1")
	require.Equal(t, http.StatusFound, rec.Code)

	accounts, err := db.ListMailAccounts(context.Background(), ts.db, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "me@example.com", accounts[0].Email)
	assert.NotContains(t, accounts[0].EncryptedCredentials, "refresh-1")
}

func TestSyncWithoutAccounts(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/sync/u1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, sync.ErrNoAccounts.Error(), body["error"])

	rec = ts.do(t, http.MethodPost, "/api/sync/u1?after=last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestAutoSyncSkipsWhenNothingIsStale(t *testing.T) {
	ts := newTestServer(t, false)

	synced := testNow.Add(-time.Hour)
	acct := &models.ConnectedMailAccount{UserID: "u1", Email: "me@example.com", EncryptedCredentials: "sealed"}
	require.NoError(t, db.UpsertMailAccount(context.Background(), ts.db, acct))
	require.NoError(t, db.MarkMailAccountsSynced(context.Background(), ts.db, []uuid.UUID{acct.ID}, synced, 0))

	rec := ts.do(t, http.MethodPost, "/api/sync/u1?auto=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["skipped"])
}

func TestBurn(t *testing.T) {
	ts := newTestServer(t, false)
	created := ts.subs.Create(context.Background(), "u1", subscriptions.Input{
		Name:         "Netflix",
		Amount:       600,
		BillingCycle: models.CycleMonthly,
		Category:     models.CategoryStreaming,
		RenewalDate:  testNow.AddDate(0, 0, 5),
	}, models.SourceManual)
	require.True(t, created.Success)

	rec := ts.do(t, http.MethodGet, "/api/users/u1/burn")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Points          []models.BurnDataPoint `json:"points"`
		MonthlyBaseline float64                `json:"monthly_baseline"`
		AnnualSavings   float64                `json:"annual_savings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Points, 12)
	assert.InDelta(t, 600.0, out.MonthlyBaseline, 1e-9)
	assert.InDelta(t, 1440.0, out.AnnualSavings, 1e-9)
}

func TestSendReminders(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		ts := newTestServer(t, false)
		rec := ts.do(t, http.MethodGet, "/api/cron/send-reminders?secret=nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized", decode(t, rec)["error"])
	})

	t.Run("unset secret rejects everything", func(t *testing.T) {
		ts := newTestServer(t, false)
		ts.server.cfg.Cron.Secret = ""
		rec := ts.do(t, http.MethodGet, "/api/cron/send-reminders?secret=")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("runs reminders", func(t *testing.T) {
		ts := newTestServer(t, false)
		ctx := context.Background()
		require.NoError(t, db.SaveUser(ctx, ts.db, &models.User{ID: "u1", Email: "u1@example.com", NotifyDashboard: true}))
		created := ts.subs.Create(ctx, "u1", subscriptions.Input{
			Name:         "Spotify",
			Amount:       119,
			BillingCycle: models.CycleMonthly,
			Category:     models.CategoryStreaming,
			RenewalDate:  testNow.AddDate(0, 0, 3),
		}, models.SourceManual)
		require.True(t, created.Success)

		rec := ts.do(t, http.MethodGet, "/api/cron/send-reminders?secret=s3cret")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(1), body["notifications"])
		assert.Equal(t, float64(1), body["stamped"])
	})
}
