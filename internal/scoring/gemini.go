package scoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/pkg/gemini"
)

// GeminiProvider scores chunks with Gemini generateContent using inline PDF
// data and JSON response mode.
type GeminiProvider struct {
	client gemini.Client
	model  string
}

// NewGeminiProvider wraps a Gemini client.
func NewGeminiProvider(client gemini.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

func (p *GeminiProvider) Name() string  { return config.ProviderGemini }
func (p *GeminiProvider) Model() string { return p.model }

// ScoreDocument implements Provider.
func (p *GeminiProvider) ScoreDocument(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:     p.model,
		System:    req.System,
		Prompt:    req.Prompt,
		Documents: [][]byte{req.Document},
		JSON:      true,
	})
	if err != nil {
		return nil, resilience.Classify(eris.Wrap(err, "scoring: gemini generate content"), gemini.StatusCode(err))
	}

	return &Response{
		Text: resp.Text,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
