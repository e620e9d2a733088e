// ABOUTME: Prometheus counters for the mailbox sync pipeline
// ABOUTME: Tracks sync runs, account failures, scanned emails, candidate rejections, and upsert outcomes
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Account failure stages.
const (
	StageDecrypt = "decrypt"
	StageClient  = "client"
	StageList    = "list"
	StagePersist = "persist_credentials"
)

// Sync results.
const (
	ResultSuccess    = "success"
	ResultFailed     = "failed"
	ResultLocked     = "locked"
	ResultNoAccounts = "no_accounts"
)

// Metrics groups the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	syncRuns           *prometheus.CounterVec
	accountFailures    *prometheus.CounterVec
	emailsScanned      prometheus.Counter
	messageFailures    prometheus.Counter
	candidatesRejected *prometheus.CounterVec
	upserts            *prometheus.CounterVec
	tokenRotations     prometheus.Counter
}

// New creates the counters and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subzero_sync_runs_total",
			Help: "Sync runs by result.",
		}, []string{"result"}),
		accountFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subzero_account_failures_total",
			Help: "Mail accounts that contributed nothing to a sync, by failing stage.",
		}, []string{"stage"}),
		emailsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subzero_emails_scanned_total",
			Help: "Email texts handed to extraction.",
		}),
		messageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subzero_message_fetch_failures_total",
			Help: "Individual message fetches that failed.",
		}),
		candidatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subzero_candidates_rejected_total",
			Help: "Extraction candidates discarded, by reason.",
		}, []string{"reason"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subzero_subscription_upserts_total",
			Help: "Detected subscriptions persisted, by outcome.",
		}, []string{"outcome"}),
		tokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subzero_token_rotations_total",
			Help: "Rotated OAuth credentials persisted.",
		}),
	}

	registerer.MustRegister(
		m.syncRuns,
		m.accountFailures,
		m.emailsScanned,
		m.messageFailures,
		m.candidatesRejected,
		m.upserts,
		m.tokenRotations,
	)
	return m
}

func (m *Metrics) SyncRun(result string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) AccountFailed(stage string) {
	if m == nil {
		return
	}
	m.accountFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) EmailsScanned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.emailsScanned.Add(float64(n))
}

func (m *Metrics) MessageFailed() {
	if m == nil {
		return
	}
	m.messageFailures.Inc()
}

func (m *Metrics) CandidateRejected(reason string) {
	if m == nil {
		return
	}
	m.candidatesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Upserted(outcome string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenRotated() {
	if m == nil {
		return
	}
	m.tokenRotations.Inc()
}
