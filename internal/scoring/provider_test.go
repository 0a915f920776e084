package scoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/pkg/anthropic"
	"github.com/odgsully/renoscore/pkg/gemini"
)

type fakeAnthropic struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestClaudeProvider_ScoreDocument(t *testing.T) {
	client := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `[{"renovation_score": 6}]`}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, OutputTokens: 120, CacheReadInputTokens: 100},
	}}
	p := NewClaudeProvider(client, "claude-sonnet-4-20250514", 0)

	resp, err := p.ScoreDocument(context.Background(), Request{System: "sys", Prompt: "score", Document: []byte("%PDF")})
	require.NoError(t, err)

	assert.Equal(t, "claude", p.Name())
	assert.Equal(t, "claude-sonnet-4-20250514", p.Model())
	assert.Equal(t, `[{"renovation_score": 6}]`, resp.Text)
	assert.Equal(t, int64(1000), resp.Usage.InputTokens)
	assert.Equal(t, int64(120), resp.Usage.OutputTokens)

	assert.Equal(t, int64(defaultClaudeMaxTokens), client.req.MaxTokens)
	require.Len(t, client.req.System, 1)
	assert.NotNil(t, client.req.System[0].CacheControl)
	require.Len(t, client.req.Messages, 1)
	assert.Equal(t, "score", client.req.Messages[0].Content)
	assert.Equal(t, [][]byte{[]byte("%PDF")}, client.req.Messages[0].Documents)
}

func TestClaudeProvider_Error(t *testing.T) {
	p := NewClaudeProvider(&fakeAnthropic{err: errors.New("connection reset by peer")}, "m", 100)
	_, err := p.ScoreDocument(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeminiProvider_ScoreDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[]"}]}}],"usageMetadata":{"promptTokenCount":50,"candidatesTokenCount":5}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(gemini.NewClient("k", gemini.WithBaseURL(srv.URL)), "gemini-2.5-flash")
	resp, err := p.ScoreDocument(context.Background(), Request{Prompt: "score", Document: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
	assert.Equal(t, int64(50), resp.Usage.InputTokens)
	assert.Equal(t, "gemini", p.Name())
}

func TestGeminiProvider_StatusClassification(t *testing.T) {
	for _, tt := range []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		p := NewGeminiProvider(gemini.NewClient("k", gemini.WithBaseURL(srv.URL)), "")
		_, err := p.ScoreDocument(context.Background(), Request{})
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tt.transient, resilience.IsTransient(err), "status %d", tt.status)
	}
}

func TestGuard_BreakerOpens(t *testing.T) {
	p := &fakeProvider{respond: func(int, Request) (*Response, error) {
		return nil, resilience.NewTransientError(errors.New("overloaded"), 529)
	}}
	breaker := resilience.NewProviderBreaker("fake", resilience.BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	})
	g := Guard(p, nil, breaker)

	_, err := g.ScoreDocument(context.Background(), Request{})
	require.Error(t, err)
	_, err = g.ScoreDocument(context.Background(), Request{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, p.calls())
	assert.Equal(t, "fake", g.Name())
	assert.Equal(t, resilience.BreakerOpen, breaker.Status().State)
}

func TestGuard_LimiterRespectsContext(t *testing.T) {
	p := &fakeProvider{respond: func(int, Request) (*Response, error) { return textResponse("[]") }}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	g := Guard(p, limiter, nil)

	_, err := g.ScoreDocument(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.ScoreDocument(ctx, Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	assert.Equal(t, 1, p.calls())
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scoring.Provider = config.ProviderClaude
	cfg.Scoring.Concurrency = 3
	cfg.Scoring.RequestsPerMinute = 60
	cfg.Anthropic.Key = "sk-ant"
	cfg.Anthropic.Model = "claude-sonnet-4-20250514"

	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())
	assert.Equal(t, "claude-sonnet-4-20250514", p.Model())

	cfg.Scoring.Provider = config.ProviderGemini
	cfg.Gemini.Model = "gemini-2.5-flash"
	p, err = NewProvider(cfg, resilience.NewProviderBreakers(resilience.BreakerConfig{}))
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	cfg.Scoring.Provider = "openai"
	_, err = NewProvider(cfg, nil)
	require.Error(t, err)
}
