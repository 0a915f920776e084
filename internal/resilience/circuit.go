// Package resilience provides the retry, backoff and circuit breaker
// policies applied to scoring provider calls.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the admission state of a provider breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected because the provider's
// circuit is open or its single half-open trial is already in flight.
var ErrCircuitOpen = eris.New("resilience: provider circuit is open")

// BreakerConfig controls when a provider breaker opens and how long it
// stays open.
type BreakerConfig struct {
	FailureThreshold int           // consecutive outage failures before opening
	Cooldown         time.Duration // time open before a trial call is admitted
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// BreakerStatus is a point-in-time view of one provider's breaker.
type BreakerStatus struct {
	Provider            string       `json:"provider"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Trips               int          `json:"trips"`
	Rejected            int64        `json:"rejected"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
}

// ProviderBreaker stops sending chunks to a provider that is having an
// outage. Only transient failures (429, 5xx, network errors, request
// timeouts) count against it. Permanent request errors mean the provider
// answered, and caller cancellation says nothing about the provider.
type ProviderBreaker struct {
	provider string
	cfg      BreakerConfig
	now      func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	trips    int
	rejected int64
	openedAt time.Time
	trial    bool // half-open trial call in flight
}

// NewProviderBreaker creates a closed breaker for provider.
func NewProviderBreaker(provider string, cfg BreakerConfig) *ProviderBreaker {
	return &ProviderBreaker{
		provider: provider,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		state:    BreakerClosed,
	}
}

// Call runs fn if the breaker admits it and records the outcome.
func Call[T any](ctx context.Context, b *ProviderBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	isTrial, err := b.admit()
	if err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(ctx, err, isTrial)
	return val, err
}

func (b *ProviderBreaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return false, ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return true, nil
	case BreakerHalfOpen:
		if b.trial {
			b.rejected++
			return false, ErrCircuitOpen
		}
		b.trial = true
		return true, nil
	}
	return false, nil
}

func (b *ProviderBreaker) record(ctx context.Context, err error, isTrial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isTrial {
		b.trial = false
	}
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	if err == nil || !IsTransient(err) {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.state = BreakerClosed
			zap.L().Info("resilience: provider circuit closed", zap.String("provider", b.provider))
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold) {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.trips++
		zap.L().Warn("resilience: provider circuit opened",
			zap.String("provider", b.provider),
			zap.Int("consecutive_failures", b.failures),
			zap.Duration("cooldown", b.cfg.Cooldown),
			zap.Error(err),
		)
	}
}

// Status reports the breaker state. An open breaker whose cooldown has
// elapsed reports half_open, since the next call will be admitted as a trial.
func (b *ProviderBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BreakerStatus{
		Provider:            b.provider,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Trips:               b.trips,
		Rejected:            b.rejected,
	}
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		st.State = BreakerHalfOpen
	}
	if !b.openedAt.IsZero() {
		opened := b.openedAt.UTC()
		st.OpenedAt = &opened
	}
	return st
}

// ProviderBreakers holds one breaker per scoring provider so breaker state
// survives across pipeline runs in a long-lived server.
type ProviderBreakers struct {
	mu       sync.Mutex
	breakers map[string]*ProviderBreaker
	cfg      BreakerConfig
}

// NewProviderBreakers creates an empty registry using cfg for new breakers.
func NewProviderBreakers(cfg BreakerConfig) *ProviderBreakers {
	return &ProviderBreakers{
		breakers: make(map[string]*ProviderBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for provider, creating it on first use.
func (pb *ProviderBreakers) Get(provider string) *ProviderBreaker {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	b, ok := pb.breakers[provider]
	if !ok {
		b = NewProviderBreaker(provider, pb.cfg)
		pb.breakers[provider] = b
	}
	return b
}

// Statuses returns every breaker's status sorted by provider. A nil
// registry reports none.
func (pb *ProviderBreakers) Statuses() []BreakerStatus {
	if pb == nil {
		return nil
	}
	pb.mu.Lock()
	breakers := make([]*ProviderBreaker, 0, len(pb.breakers))
	for _, b := range pb.breakers {
		breakers = append(breakers, b)
	}
	pb.mu.Unlock()

	out := make([]BreakerStatus, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
