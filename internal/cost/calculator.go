// Package cost prices scoring runs from token usage.
package cost

import (
	"math"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
)

// Estimate is a pre-flight projection for a scoring run.
type Estimate struct {
	Provider     string  `json:"provider"`
	Pages        int     `json:"pages"`
	Chunks       int     `json:"chunks"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Calculator computes costs from the configured per-provider rates.
type Calculator struct {
	pricing config.PricingConfig
}

// NewCalculator creates a Calculator with the given pricing.
func NewCalculator(pricing config.PricingConfig) *Calculator {
	return &Calculator{pricing: pricing}
}

func (c *Calculator) rate(provider string) config.ModelPricing {
	switch provider {
	case config.ProviderClaude:
		return c.pricing.Claude
	case config.ProviderGemini:
		return c.pricing.Gemini
	}
	return config.ModelPricing{}
}

// Tokens returns the USD cost of input and output tokens for provider.
// Unknown providers cost 0.
func (c *Calculator) Tokens(provider string, input, output int64) float64 {
	rate := c.rate(provider)
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Actual prices recorded usage.
func (c *Calculator) Actual(provider string, u model.Usage) float64 {
	return c.Tokens(provider, u.InputTokens, u.OutputTokens)
}

// Estimate projects the cost of scoring pages in chunks of pagesPerChunk.
// Each chunk carries the rubric prompt once.
func (c *Calculator) Estimate(provider string, pages, pagesPerChunk int) Estimate {
	if pagesPerChunk < 1 {
		pagesPerChunk = 1
	}
	est := Estimate{Provider: provider, Pages: pages}
	if pages <= 0 {
		return est
	}
	est.Chunks = int(math.Ceil(float64(pages) / float64(pagesPerChunk)))
	est.InputTokens = int64(pages)*c.pricing.InputTokensPerPage + int64(est.Chunks)*c.pricing.PromptTokensPerChunk
	est.OutputTokens = int64(pages) * c.pricing.OutputTokensPerPage
	est.USD = c.Tokens(provider, est.InputTokens, est.OutputTokens)
	return est
}
