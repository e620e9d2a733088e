// ABOUTME: Extraction oracle adapter turning email texts into validated subscription candidates
// ABOUTME: Supports batch and single-email strategies behind one confidence gate
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/subzero/logging"
	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"go.uber.org/zap"
)

// Strategy selects how email texts are grouped into oracle calls.
type Strategy string

const (
	StrategyBatch  Strategy = "batch"
	StrategySingle Strategy = "single"
)

const (
	DefaultThreshold = 0.6
	BatchMaxChars    = 2000
	SingleMaxChars   = 3000
	BatchSize        = 50

	singleConcurrency = 8
)

// ParseStrategy accepts "batch" or "single".
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyBatch, "":
		return StrategyBatch, nil
	case StrategySingle:
		return StrategySingle, nil
	default:
		return "", fmt.Errorf("unknown extraction strategy %q", s)
	}
}

// Adapter wraps an Oracle with truncation, validation, and the confidence gate.
// Oracle failures never surface as errors: they yield no candidates.
type Adapter struct {
	Oracle    Oracle
	Threshold float64
	Strategy  Strategy
	// MaxChars caps each email; zero picks the strategy default.
	MaxChars  int
	BatchSize int
	Now       func() time.Time
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// New returns an adapter with default threshold and batch strategy.
func New(oracle Oracle) *Adapter {
	return &Adapter{
		Oracle:    oracle,
		Threshold: DefaultThreshold,
		Strategy:  StrategyBatch,
		BatchSize: BatchSize,
		Now:       time.Now,
	}
}

// Check reports whether the oracle can run at all, so callers can fail
// before gathering texts.
func (a *Adapter) Check() error {
	if a.Oracle == nil {
		return errors.New("no extraction oracle configured")
	}
	if c, ok := a.Oracle.(Checker); ok {
		return c.Check()
	}
	return nil
}

func (a *Adapter) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Adapter) logger() *zap.Logger {
	return logging.OrNop(a.Logger)
}

func (a *Adapter) maxChars(s Strategy) int {
	if a.MaxChars > 0 {
		return a.MaxChars
	}
	if s == StrategySingle {
		return SingleMaxChars
	}
	return BatchMaxChars
}

// Extract dispatches on the configured strategy.
func (a *Adapter) Extract(ctx context.Context, texts []string) []models.Candidate {
	if a.Strategy == StrategySingle {
		return a.extractEach(ctx, texts)
	}
	return a.ExtractFromBatch(ctx, texts)
}

// ExtractFromBatch sends texts in chunks, one oracle call per chunk, chunks in parallel.
func (a *Adapter) ExtractFromBatch(ctx context.Context, texts []string) []models.Candidate {
	texts = nonBlank(texts)
	if len(texts) == 0 || a.Oracle == nil {
		return nil
	}

	size := a.BatchSize
	if size <= 0 || size > BatchSize {
		size = BatchSize
	}
	var chunks [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, texts[start:end])
	}

	results := make([][]models.Candidate, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []string) {
			defer wg.Done()
			results[i] = a.extractChunk(ctx, chunk)
		}(i, chunk)
	}
	wg.Wait()

	var out []models.Candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (a *Adapter) extractChunk(ctx context.Context, chunk []string) []models.Candidate {
	now := a.now()
	prompt := batchPrompt(chunk, a.maxChars(StrategyBatch), now)

	resp, err := a.Oracle.Generate(ctx, prompt)
	if err != nil {
		a.logger().Warn("extraction oracle failed", zap.Int("emails", len(chunk)), zap.Error(err))
		return nil
	}

	entries, ok := parseBatch(resp)
	if !ok {
		a.logger().Warn("extraction oracle returned unparseable output", zap.Int("emails", len(chunk)))
		a.Metrics.CandidateRejected(ReasonMalformed)
		return nil
	}

	var out []models.Candidate
	for _, entry := range entries {
		if c, ok := a.gate(entry, now); ok {
			out = append(out, c)
		}
	}
	return out
}

// ExtractFromEmail extracts at most one candidate from a single email.
func (a *Adapter) ExtractFromEmail(ctx context.Context, text string) *models.Candidate {
	if strings.TrimSpace(text) == "" || a.Oracle == nil {
		return nil
	}
	now := a.now()

	resp, err := a.Oracle.Generate(ctx, singlePrompt(text, a.maxChars(StrategySingle), now))
	if err != nil {
		a.logger().Warn("extraction oracle failed", zap.Error(err))
		return nil
	}

	raw, isNull := parseSingle(resp)
	if isNull {
		return nil
	}
	c, ok := a.gate(raw, now)
	if !ok {
		return nil
	}
	return &c
}

func (a *Adapter) extractEach(ctx context.Context, texts []string) []models.Candidate {
	texts = nonBlank(texts)
	results := make([]*models.Candidate, len(texts))

	sem := make(chan struct{}, singleConcurrency)
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.ExtractFromEmail(ctx, text)
		}(i, text)
	}
	wg.Wait()

	var out []models.Candidate
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// gate validates one entry and applies the confidence threshold.
func (a *Adapter) gate(entry []byte, now time.Time) (models.Candidate, bool) {
	c, reason := validate(entry, now)
	if reason == "" && c.Confidence < a.Threshold {
		reason = ReasonLowConfidence
	}
	if reason != "" {
		a.Metrics.CandidateRejected(reason)
		a.logger().Debug("candidate rejected",
			zap.String("reason", reason),
			zap.String("name", c.Name),
			zap.Float64("confidence", c.Confidence),
		)
		return models.Candidate{}, false
	}
	return c, true
}

func nonBlank(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
