// ABOUTME: Tests for the extraction oracle adapter
// ABOUTME: Uses fake oracles to cover validation, the confidence gate, chunking, and failure handling
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harperreed/subzero/metrics"
	"github.com/harperreed/subzero/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC)

func staticOracle(response string) OracleFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return response, nil
	}
}

func newTestAdapter(o Oracle) *Adapter {
	a := New(o)
	a.Now = func() time.Time { return fixedNow }
	return a
}

func TestExtractFromBatch_ConfidenceGate(t *testing.T) {
	resp := `{"subscriptions":[
		{"name":"Netflix","amount":649,"billingCycle":"monthly","category":"Streaming","renewalDate":"2025-05-01","confidence":0.5},
		{"name":"Spotify","amount":119,"billingCycle":"monthly","category":"Streaming","renewalDate":"2025-05-02","confidence":0.6},
		{"name":"AWS","amount":12.5,"currency":"usd","billingCycle":"monthly","category":"Cloud","renewalDate":"2025-05-03","confidence":0.95}
	]}`
	a := newTestAdapter(staticOracle(resp))

	got := a.ExtractFromBatch(context.Background(), []string{"email"})

	require.Len(t, got, 2)
	assert.Equal(t, "Spotify", got[0].Name, "confidence equal to the threshold passes")
	assert.Equal(t, "AWS", got[1].Name)
	assert.Equal(t, "USD", got[1].Currency)
}

func TestExtractFromBatch_RejectsMalformedEntriesIndividually(t *testing.T) {
	resp := `{"subscriptions":[
		{"name":"","amount":10,"billingCycle":"monthly","confidence":0.9},
		{"name":"A","amount":-1,"billingCycle":"monthly","confidence":0.9},
		{"name":"B","amount":"10","billingCycle":"monthly","confidence":0.9},
		{"name":"C","amount":10,"billingCycle":"weekly","confidence":0.9},
		{"name":"D","amount":10,"billingCycle":"monthly","category":"Games","confidence":0.9},
		{"name":"E","amount":10,"billingCycle":"monthly","renewalDate":"05/01/2025","confidence":0.9},
		{"name":"F","amount":10,"billingCycle":"monthly","confidence":1.5},
		{"name":"G","amount":10,"billingCycle":"monthly","currency":"US Dollar","confidence":0.9},
		{"name":"H","amount":10,"billingCycle":"monthly"},
		{"name":"Valid","amount":10,"billingCycle":"Yearly","category":"software","confidence":0.9}
	]}`
	reg := prometheus.NewRegistry()
	a := newTestAdapter(staticOracle(resp))
	a.Metrics = metrics.New(reg)

	got := a.ExtractFromBatch(context.Background(), []string{"email"})

	require.Len(t, got, 1)
	assert.Equal(t, "Valid", got[0].Name)
	assert.Equal(t, models.CycleYearly, got[0].BillingCycle)
	assert.Equal(t, models.CategorySoftware, got[0].Category)

	count, err := testutil.GatherAndCount(reg, "subzero_candidates_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 8, count, "one series per distinct rejection reason")
}

func TestExtractFromBatch_Defaults(t *testing.T) {
	resp := `{"subscriptions":[{"name":"Notion","amount":8,"billingCycle":"monthly","confidence":0.8}]}`
	a := newTestAdapter(staticOracle(resp))

	got := a.ExtractFromBatch(context.Background(), []string{"email"})

	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryOthers, got[0].Category)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), got[0].RenewalDate)
	assert.Empty(t, got[0].Currency)
}

func TestExtractFromBatch_OracleFailureYieldsNothing(t *testing.T) {
	a := newTestAdapter(OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	}))

	assert.Empty(t, a.ExtractFromBatch(context.Background(), []string{"email"}))
}

func TestExtractFromBatch_UnparseableOutput(t *testing.T) {
	for _, resp := range []string{"not json", `{"subscriptions": "none"}`, ""} {
		a := newTestAdapter(staticOracle(resp))
		assert.Empty(t, a.ExtractFromBatch(context.Background(), []string{"email"}), "response %q", resp)
	}
}

func TestExtractFromBatch_AcceptsFencedAndBareArray(t *testing.T) {
	entry := `{"name":"Zoom","amount":15,"billingCycle":"monthly","category":"Software","renewalDate":"2025-05-01","confidence":0.9}`
	for _, resp := range []string{
		"```json\n{\"subscriptions\":[" + entry + "]}\n```",
		"[" + entry + "]",
	} {
		a := newTestAdapter(staticOracle(resp))
		got := a.ExtractFromBatch(context.Background(), []string{"email"})
		require.Len(t, got, 1, "response %q", resp)
		assert.Equal(t, "Zoom", got[0].Name)
	}
}

func TestExtractFromBatch_ChunksAndFramesEmails(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var prompts []string
	a := newTestAdapter(OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return `{"subscriptions":[]}`, nil
	}))

	texts := make([]string, 120)
	for i := range texts {
		texts[i] = fmt.Sprintf("body %d", i)
	}
	a.ExtractFromBatch(context.Background(), texts)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	for _, p := range prompts {
		assert.Contains(t, p, "--- Email 1 ---")
		assert.NotContains(t, p, "--- Email 51 ---")
	}
}

func TestExtractFromBatch_TruncatesEachEmail(t *testing.T) {
	var prompt string
	a := newTestAdapter(OracleFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"subscriptions":[]}`, nil
	}))

	long := strings.Repeat("x", 2500) + "TAIL"
	a.ExtractFromBatch(context.Background(), []string{long})

	assert.Contains(t, prompt, strings.Repeat("x", 2000))
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))
	assert.NotContains(t, prompt, "TAIL")
	assert.Contains(t, prompt, "2025-05-10", "prompt states the default renewal date")
}

func TestExtractFromBatch_SkipsBlankTexts(t *testing.T) {
	called := false
	a := newTestAdapter(OracleFunc(func(ctx context.Context, p string) (string, error) {
		called = true
		return `{"subscriptions":[]}`, nil
	}))

	assert.Empty(t, a.ExtractFromBatch(context.Background(), []string{"", "   "}))
	assert.False(t, called)
}

func TestExtractFromEmail(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"null", "null", ""},
		{"empty", "", ""},
		{"valid", `{"name":"Disney+","amount":299,"currency":"INR","billingCycle":"monthly","renewalDate":"2025-05-05","confidence":0.7}`, "Disney+"},
		{"below threshold", `{"name":"Disney+","amount":299,"billingCycle":"monthly","confidence":0.59}`, ""},
		{"malformed", `{"name":"Disney+","amount":"lots"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(staticOracle(tt.response))
			got := a.ExtractFromEmail(context.Background(), "email body")
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestExtractFromEmail_TruncatesAt3000(t *testing.T) {
	var prompt string
	a := newTestAdapter(OracleFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "null", nil
	}))

	a.ExtractFromEmail(context.Background(), strings.Repeat("y", 3500))

	assert.Contains(t, prompt, strings.Repeat("y", 3000))
	assert.NotContains(t, prompt, strings.Repeat("y", 3001))
}

func TestExtract_SingleStrategyCallsPerEmail(t *testing.T) {
	var calls int32
	a := newTestAdapter(OracleFunc(func(ctx context.Context, p string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return `{"name":"Dropbox","amount":11.99,"billingCycle":"monthly","confidence":0.9}`, nil
	}))
	a.Strategy = StrategySingle

	got := a.Extract(context.Background(), []string{"a", "b", "c"})

	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExtract_CustomThreshold(t *testing.T) {
	resp := `{"subscriptions":[{"name":"X","amount":1,"billingCycle":"monthly","confidence":0.7}]}`
	a := newTestAdapter(staticOracle(resp))
	a.Threshold = 0.75

	assert.Empty(t, a.Extract(context.Background(), []string{"email"}))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Single")
	require.NoError(t, err)
	assert.Equal(t, StrategySingle, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyBatch, s)

	_, err = ParseStrategy("stream")
	assert.Error(t, err)
}

func TestAdapterCheck(t *testing.T) {
	missing := errors.New("GEMINI_API_KEY is not set")

	assert.NoError(t, newTestAdapter(staticOracle(`{"subscriptions":[]}`)).Check())
	assert.ErrorIs(t, newTestAdapter(Unavailable(missing)).Check(), missing)
	assert.Error(t, (&Adapter{}).Check())

	got := newTestAdapter(Unavailable(missing)).Extract(context.Background(), []string{"Netflix charged 649"})
	assert.Empty(t, got)
}
