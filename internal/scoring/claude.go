package scoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/pkg/anthropic"
)

const defaultClaudeMaxTokens = 4096

// ClaudeProvider scores chunks with the Anthropic Messages API, sending the
// chunk as a base64 PDF document block.
type ClaudeProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeProvider wraps an Anthropic client.
func NewClaudeProvider(client anthropic.Client, model string, maxTokens int64) *ClaudeProvider {
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeProvider{client: client, model: model, maxTokens: maxTokens}
}

func (p *ClaudeProvider) Name() string  { return config.ProviderClaude }
func (p *ClaudeProvider) Model() string { return p.model }

// ScoreDocument implements Provider.
func (p *ClaudeProvider) ScoreDocument(ctx context.Context, req Request) (*Response, error) {
	msgReq := anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   req.Prompt,
			Documents: [][]byte{req.Document},
		}},
	}
	if req.System != "" {
		// The rubric is identical across chunks of the same dwelling type.
		msgReq.System = []anthropic.SystemBlock{{Text: req.System, CacheControl: &anthropic.CacheControl{}}}
	}

	resp, err := p.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return nil, resilience.Classify(eris.Wrap(err, "scoring: claude create message"), anthropic.StatusCode(err))
	}

	return &Response{
		Text: resp.Text(),
		Usage: model.Usage{
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
