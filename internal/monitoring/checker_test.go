package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &mockStore{}
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), st, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RecoversOnStart(t *testing.T) {
	st := &mockStore{recovered: 2}
	cfg := config.MonitoringConfig{CheckIntervalSecs: 60, StaleBatchMins: 3}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), st, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(st.recoverCalls()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []time.Duration{3 * time.Minute}, st.recoverCalls())
}

func TestChecker_DefaultStaleAge(t *testing.T) {
	checker := NewChecker(nil, nil, nil, config.MonitoringConfig{})
	assert.Equal(t, store.StaleBatchAge, checker.staleAge())
}

func TestChecker_RecoverErrorIgnored(t *testing.T) {
	st := &mockStore{recoverErr: errors.New("locked")}
	cfg := config.MonitoringConfig{}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), st, cfg)

	assert.NotPanics(t, func() { checker.recover(context.Background(), zap.NewNop()) })
	assert.Len(t, st.recoverCalls(), 1)
}

func TestChecker_NilRecoverer(t *testing.T) {
	st := &mockStore{}
	cfg := config.MonitoringConfig{}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), nil, cfg)

	assert.NotPanics(t, func() { checker.recover(context.Background(), zap.NewNop()) })
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := &mockStore{}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(config.MonitoringConfig{}), st, config.MonitoringConfig{})

	// Cancelled before start: returns without recovering.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
	assert.Empty(t, st.recoverCalls())
}
