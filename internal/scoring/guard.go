package scoring

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/odgsully/renoscore/internal/resilience"
)

type guarded struct {
	Provider
	limiter *rate.Limiter
	breaker *resilience.ProviderBreaker
}

// Guard wraps p so every call first waits on limiter and then runs through
// breaker. Either may be nil.
func Guard(p Provider, limiter *rate.Limiter, breaker *resilience.ProviderBreaker) Provider {
	return &guarded{Provider: p, limiter: limiter, breaker: breaker}
}

func (g *guarded) ScoreDocument(ctx context.Context, req Request) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scoring: rate limit wait")
		}
	}
	if g.breaker == nil {
		return g.Provider.ScoreDocument(ctx, req)
	}
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
		return g.Provider.ScoreDocument(ctx, req)
	})
}
