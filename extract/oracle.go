// ABOUTME: Extraction oracle abstraction and the Gemini implementation
// ABOUTME: Sends a text prompt and returns the model's JSON text response
package extract

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used for extraction.
const DefaultModel = "gemini-1.5-flash"

// Oracle turns a prompt into a JSON text response.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Checker is implemented by oracles that can tell up front they cannot run.
type Checker interface {
	Check() error
}

type unavailableOracle struct {
	err error
}

// Unavailable returns an oracle whose Check and Generate both report err.
// It stands in for a model that is not configured.
func Unavailable(err error) Oracle {
	return unavailableOracle{err: err}
}

func (u unavailableOracle) Check() error { return u.err }

func (u unavailableOracle) Generate(context.Context, string) (string, error) {
	return "", u.err
}

// GeminiOracle calls the Generative Language API with JSON output enabled.
type GeminiOracle struct {
	service *generativelanguage.Service
	model   string
}

// NewGeminiOracle creates a Gemini-backed oracle.
func NewGeminiOracle(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiOracle, error) {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)

	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini service: %w", err)
	}
	return &GeminiOracle{service: svc, model: model}, nil
}

func (g *GeminiOracle) Generate(ctx context.Context, prompt string) (string, error) {
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{
			ResponseMimeType: "application/json",
		},
	}

	resp, err := g.service.Models.GenerateContent("models/"+g.model, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("model returned no content")
	}
	return b.String(), nil
}
