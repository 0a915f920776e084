package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/store"
)

// StaleRecoverer marks batches stuck in scoring as timed out.
type StaleRecoverer interface {
	RecoverStaleBatches(ctx context.Context, olderThan time.Duration) (int, error)
}

// Checker runs periodic stale-batch recovery and alert checks in the
// background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	recoverer StaleRecoverer
	cfg       config.MonitoringConfig
}

// NewChecker creates a background checker. recoverer may be nil.
func NewChecker(collector *Collector, alerter *Alerter, recoverer StaleRecoverer, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		recoverer: recoverer,
		cfg:       cfg,
	}
}

// Run recovers stale batches once, then repeats recovery and alert checks
// on each tick. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting batch checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		c.recover(ctx, log)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("batch checker stopped")
			return
		case <-ticker.C:
			c.recover(ctx, log)
			c.check(ctx, log)
		}
	}
}

func (c *Checker) staleAge() time.Duration {
	if c.cfg.StaleBatchMins > 0 {
		return time.Duration(c.cfg.StaleBatchMins) * time.Minute
	}
	return store.StaleBatchAge
}

func (c *Checker) recover(ctx context.Context, log *zap.Logger) {
	if c.recoverer == nil {
		return
	}
	n, err := c.recoverer.RecoverStaleBatches(ctx, c.staleAge())
	if err != nil {
		log.Error("monitoring: failed to recover stale batches", zap.Error(err))
		return
	}
	if n > 0 {
		log.Warn("monitoring: stale batches timed out", zap.Int("count", n))
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
