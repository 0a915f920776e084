package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/cost"
	"github.com/odgsully/renoscore/internal/ocr"
	"github.com/odgsully/renoscore/internal/pipeline"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/internal/scoring"
	"github.com/odgsully/renoscore/internal/store"
)

// scoringEnv holds the provider, pipeline, and optional store used by the
// score and serve commands.
type scoringEnv struct {
	Provider   scoring.Provider
	Pipeline   *pipeline.Pipeline
	Calculator *cost.Calculator
	Breakers   *resilience.ProviderBreakers
	Store      store.Store // nil when persistence is off
	ChunkSize  int
}

// Close releases resources held by the environment.
func (e *scoringEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScoring validates config for mode, builds the provider and pipeline,
// and opens the store when withStore is set. Callers should defer env.Close().
func initScoring(ctx context.Context, mode string, withStore bool) (*scoringEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	breakers := resilience.NewProviderBreakers(resilience.BreakerConfigFrom(cfg.Scoring.Breaker))
	provider, err := scoring.NewProvider(cfg, breakers)
	if err != nil {
		return nil, err
	}
	text, err := ocr.NewExtractor(cfg.Text, cfg.Mistral)
	if err != nil {
		return nil, err
	}

	chunk := cfg.Scoring.PagesPerChunk
	if chunk <= 0 {
		chunk = scoring.DefaultChunkSize(provider.Name())
	}

	env := &scoringEnv{
		Provider:   provider,
		Pipeline:   pipeline.New(cfg, provider, text),
		Calculator: cost.NewCalculator(cfg.Pricing),
		Breakers:   breakers,
		ChunkSize:  chunk,
	}

	if withStore {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	zap.L().Info("scoring environment ready",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.String("text_source", cfg.Text.Source),
		zap.Int("pages_per_chunk", chunk),
		zap.Bool("store", withStore),
	)
	return env, nil
}

// openStore validates the store settings and opens it.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}
