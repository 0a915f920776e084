package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockStore implements BatchLister and StaleRecoverer for testing.
type mockStore struct {
	mu         sync.Mutex
	batches    []model.ScoringBatch
	listErr    error
	recovered  int
	recoverErr error
	recoverAge []time.Duration
	lastFilter store.BatchFilter
}

func (m *mockStore) ListBatches(_ context.Context, filter store.BatchFilter) ([]model.ScoringBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	return m.batches, m.listErr
}

func (m *mockStore) RecoverStaleBatches(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoverAge = append(m.recoverAge, olderThan)
	return m.recovered, m.recoverErr
}

func (m *mockStore) recoverCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.recoverAge...)
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.BatchTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.CostUSD)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_BatchMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		batches: []model.ScoringBatch{
			{ID: "1", Status: model.BatchComplete, CreatedAt: now.Add(-1 * time.Hour), ActualCost: 1.50, TotalPages: 10, Stats: model.Stats{Scored: 9, Failed: 1}},
			{ID: "2", Status: model.BatchComplete, CreatedAt: now.Add(-2 * time.Hour), ActualCost: 2.00, TotalPages: 6, Stats: model.Stats{Scored: 5, Unmatched: 1}},
			{ID: "3", Status: model.BatchError, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "4", Status: model.BatchTimedOut, CreatedAt: now.Add(-4 * time.Hour)},
			{ID: "5", Status: model.BatchScoring, CreatedAt: now.Add(-30 * time.Minute)},
			// Outside lookback window.
			{ID: "6", Status: model.BatchError, CreatedAt: now.Add(-48 * time.Hour), ActualCost: 9},
		},
	}

	snap, err := NewCollector(st, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, maxBatches, st.lastFilter.Limit)
	assert.Equal(t, 5, snap.BatchTotal)
	assert.Equal(t, 2, snap.BatchComplete)
	assert.Equal(t, 1, snap.BatchError)
	assert.Equal(t, 1, snap.BatchTimedOut)
	assert.Equal(t, 1, snap.BatchActive)
	assert.InDelta(t, 0.5, snap.FailRate, 0.001) // 2 failed / 4 finished
	assert.InDelta(t, 3.50, snap.CostUSD, 0.001)
	assert.Equal(t, 16, snap.PagesTotal)
	assert.Equal(t, 14, snap.PropertiesScored)
	assert.Equal(t, 1, snap.PagesFailed)
	assert.Equal(t, 1, snap.Unmatched)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		batches: []model.ScoringBatch{
			{ID: "1", Status: model.BatchScoring, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "2", Status: model.BatchPending, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}

	snap, err := NewCollector(st, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.BatchActive)
	assert.Equal(t, 0.0, snap.FailRate)
}

func TestCollector_ListError(t *testing.T) {
	st := &mockStore{listErr: errors.New("db down")}

	_, err := NewCollector(st, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list batches")
}

func TestCollector_ProviderBreakers(t *testing.T) {
	breakers := resilience.NewProviderBreakers(resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	_, _ = resilience.Call(context.Background(), breakers.Get("gemini"), func(context.Context) (int, error) {
		return 0, resilience.NewTransientError(errors.New("service unavailable"), 503)
	})
	breakers.Get("claude")

	snap, err := NewCollector(&mockStore{}, breakers).Collect(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, snap.Providers, 2)
	assert.Equal(t, "claude", snap.Providers[0].Provider)
	assert.Equal(t, resilience.BreakerClosed, snap.Providers[0].State)
	assert.Equal(t, "gemini", snap.Providers[1].Provider)
	assert.Equal(t, resilience.BreakerOpen, snap.Providers[1].State)
}
