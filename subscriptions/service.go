// ABOUTME: Subscription upsert engine for manual entries and AI-detected candidates
// ABOUTME: Validates input, stamps provenance, normalizes currency, and deduplicates detections
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"go.uber.org/zap"
)

// ErrNotFound means the subscription does not exist for the user.
var ErrNotFound = errors.New("subscription not found")

// Outcome of persisting a detected candidate.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeMatched Outcome = "matched"
)

// Input is the user-facing form of a subscription.
type Input struct {
	Name         string    `json:"name"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency,omitempty"`
	BillingCycle string    `json:"billing_cycle"`
	Category     string    `json:"category"`
	RenewalDate  time.Time `json:"renewal_date"`
}

// ValidationError lists invalid fields with a message for each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid subscription: " + strings.Join(parts, "; ")
}

// Validate checks every field and reports all problems at once.
func (in Input) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "is required"
	}
	if in.Amount <= 0 {
		fields["amount"] = "must be greater than zero"
	}
	if !models.IsValidCycle(in.BillingCycle) {
		fields["billing_cycle"] = "must be monthly or yearly"
	}
	if !models.IsValidCategory(in.Category) {
		fields["category"] = "must be one of " + strings.Join(models.Categories, ", ")
	}
	if in.RenewalDate.IsZero() {
		fields["renewal_date"] = "is required"
	}
	if c := strings.TrimSpace(in.Currency); c != "" && len(c) != 3 {
		fields["currency"] = "must be a 3-letter ISO 4217 code"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Result reports the outcome of a create.
type Result struct {
	Success bool      `json:"success"`
	ID      uuid.UUID `json:"id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Patch holds the fields an update changes. Nil fields are left alone.
type Patch struct {
	Name         *string
	Amount       *float64
	Currency     *string
	BillingCycle *string
	Category     *string
	RenewalDate  *time.Time
}

// Service owns writes to a user's subscription collection.
type Service struct {
	DB           *sql.DB
	Converter    finance.Converter
	BaseCurrency string
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// NewService returns a service converting into INR with the static table.
func NewService(database *sql.DB) *Service {
	return &Service{
		DB:           database,
		Converter:    finance.DefaultRates(),
		BaseCurrency: "INR",
		Now:          time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) currency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = s.BaseCurrency
	}
	if code == "" {
		code = "INR"
	}
	return code
}

func (s *Service) toBase(amount float64, currency string) float64 {
	if s.Converter == nil {
		return amount
	}
	return finance.ConvertAmount(s.Converter, amount, currency)
}

// Create validates and stores a subscription. Manual entries start verified,
// detected ones start unverified.
func (s *Service) Create(ctx context.Context, userID string, in Input, source string) Result {
	if err := in.Validate(); err != nil {
		return Result{Error: err.Error()}
	}
	if !models.IsValidSource(source) {
		return Result{Error: fmt.Sprintf("invalid source %q", source)}
	}

	sub := s.build(userID, in, source)
	if err := db.CreateSubscription(ctx, s.DB, sub); err != nil {
		logging.OrNop(s.Logger).Error("subscription create failed", zap.String("name", sub.Name), zap.Error(err))
		return Result{Error: err.Error()}
	}
	return Result{Success: true, ID: sub.ID}
}

func (s *Service) build(userID string, in Input, source string) *models.Subscription {
	currency := s.currency(in.Currency)
	now := s.now()
	return &models.Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		Name:             strings.TrimSpace(in.Name),
		Amount:           in.Amount,
		BillingCycle:     in.BillingCycle,
		Category:         in.Category,
		RenewalDate:      in.RenewalDate,
		OriginalCurrency: currency,
		AmountInBase:     s.toBase(in.Amount, currency),
		Source:           source,
		Verified:         source == models.SourceManual,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Update applies a patch to a user's subscription and returns the stored result.
func (s *Service) Update(ctx context.Context, userID string, id uuid.UUID, p Patch) (*models.Subscription, error) {
	sub, err := db.GetSubscription(ctx, s.DB, userID, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	in := Input{
		Name:         sub.Name,
		Amount:       sub.Amount,
		Currency:     sub.OriginalCurrency,
		BillingCycle: sub.BillingCycle,
		Category:     sub.Category,
		RenewalDate:  sub.RenewalDate,
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Currency != nil {
		in.Currency = *p.Currency
	}
	if p.BillingCycle != nil {
		in.BillingCycle = *p.BillingCycle
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.RenewalDate != nil {
		in.RenewalDate = *p.RenewalDate
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sub.Name = strings.TrimSpace(in.Name)
	sub.Amount = in.Amount
	sub.OriginalCurrency = s.currency(in.Currency)
	sub.AmountInBase = s.toBase(in.Amount, sub.OriginalCurrency)
	sub.BillingCycle = in.BillingCycle
	sub.Category = in.Category
	sub.RenewalDate = in.RenewalDate

	if err := db.UpdateSubscription(ctx, s.DB, sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Delete removes a subscription permanently.
func (s *Service) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	ok, err := db.DeleteSubscription(ctx, s.DB, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Verify marks a subscription as confirmed by a human. It cannot be undone.
func (s *Service) Verify(ctx context.Context, userID string, id uuid.UUID) error {
	ok, err := db.MarkSubscriptionVerified(ctx, s.DB, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Subscription, error) {
	return db.ListSubscriptions(ctx, s.DB, userID)
}

func (s *Service) candidateInput(c models.Candidate) Input {
	return Input{
		Name:         c.Name,
		Amount:       c.Amount,
		Currency:     c.Currency,
		BillingCycle: c.BillingCycle,
		Category:     c.Category,
		RenewalDate:  c.RenewalDate,
	}
}

// Persist stores one detected candidate, stamping an existing match instead
// of creating a duplicate.
func (s *Service) Persist(ctx context.Context, userID string, c models.Candidate) (Outcome, error) {
	existing, err := s.List(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.persistWith(ctx, NewMatcher(existing), userID, c)
}

// PersistSummary counts the outcomes of a PersistAll call.
type PersistSummary struct {
	Created int
	Matched int
	Failed  int
}

// PersistAll stores candidates using one matcher for the whole batch. A
// failed write is logged and counted without affecting its siblings.
func (s *Service) PersistAll(ctx context.Context, userID string, candidates []models.Candidate) (PersistSummary, error) {
	var summary PersistSummary
	if len(candidates) == 0 {
		return summary, nil
	}

	existing, err := s.List(ctx, userID)
	if err != nil {
		return summary, err
	}
	matcher := NewMatcher(existing)

	for _, c := range candidates {
		outcome, err := s.persistWith(ctx, matcher, userID, c)
		switch {
		case err != nil:
			summary.Failed++
			logging.OrNop(s.Logger).Warn("failed to persist detected subscription",
				zap.String("name", c.Name), zap.Error(err))
		case outcome == OutcomeCreated:
			summary.Created++
		default:
			summary.Matched++
		}
	}
	return summary, nil
}

func (s *Service) persistWith(ctx context.Context, m *Matcher, userID string, c models.Candidate) (Outcome, error) {
	in := s.candidateInput(c)
	if err := in.Validate(); err != nil {
		return "", err
	}
	currency := s.currency(c.Currency)

	if match, ok := m.FindMatch(c.Name, c.Amount, currency); ok {
		at := s.now()
		if err := db.TouchSubscriptionDetected(ctx, s.DB, match.ID, at); err != nil {
			return "", err
		}
		match.LastDetectedAt = &at
		s.Metrics.Upserted(string(OutcomeMatched))
		return OutcomeMatched, nil
	}

	sub := s.build(userID, in, models.SourceAIDetected)
	if err := db.CreateSubscription(ctx, s.DB, sub); err != nil {
		return "", err
	}
	m.Add(sub)
	s.Metrics.Upserted(string(OutcomeCreated))
	return OutcomeCreated, nil
}
