// Package scoring sends flyer chunks to a multimodal provider and turns the
// responses into validated per-page renovation scores.
package scoring

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/pkg/anthropic"
	"github.com/odgsully/renoscore/pkg/gemini"
)

// Request is one scoring call: a PDF chunk plus the rendered prompt.
type Request struct {
	System   string
	Prompt   string
	Document []byte
}

// Response is the provider's raw text and the tokens it consumed.
type Response struct {
	Text  string
	Usage model.Usage
}

// Provider scores a document chunk. Errors carrying an HTTP status should be
// classified with resilience.Classify so the breaker can tell them apart.
type Provider interface {
	Name() string
	Model() string
	ScoreDocument(ctx context.Context, req Request) (*Response, error)
}

// DefaultChunkSize returns the pages-per-request default for a provider.
func DefaultChunkSize(provider string) int {
	if provider == config.ProviderClaude {
		return 5
	}
	return 2
}

// NewProvider builds the configured provider, wrapped in a Guard that
// enforces the configured request rate and circuit breaker.
func NewProvider(cfg *config.Config, breakers *resilience.ProviderBreakers) (Provider, error) {
	var p Provider
	switch cfg.Scoring.Provider {
	case config.ProviderClaude:
		client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
		p = NewClaudeProvider(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	case config.ProviderGemini:
		client := gemini.NewClient(cfg.Gemini.Key,
			gemini.WithBaseURL(cfg.Gemini.BaseURL),
			gemini.WithModel(cfg.Gemini.Model))
		p = NewGeminiProvider(client, cfg.Gemini.Model)
	default:
		return nil, eris.Errorf("scoring: unknown provider %q", cfg.Scoring.Provider)
	}

	limit := rate.Inf
	burst := 1
	if rpm := cfg.Scoring.RequestsPerMinute; rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
		burst = max(1, cfg.Scoring.Concurrency)
	}
	if breakers == nil {
		breakers = resilience.NewProviderBreakers(resilience.BreakerConfigFrom(cfg.Scoring.Breaker))
	}
	return Guard(p, rate.NewLimiter(limit, burst), breakers.Get(p.Name())), nil
}
