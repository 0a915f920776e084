package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/internal/store"
)

// maxBatches caps the batches scanned per snapshot.
const maxBatches = 10000

// MetricsSnapshot holds a point-in-time view of scoring health.
type MetricsSnapshot struct {
	// Batch metrics (within lookback window).
	BatchTotal    int     `json:"batch_total"`
	BatchComplete int     `json:"batch_complete"`
	BatchError    int     `json:"batch_error"`
	BatchTimedOut int     `json:"batch_timed_out"`
	BatchActive   int     `json:"batch_active"`
	FailRate      float64 `json:"fail_rate"`
	CostUSD       float64 `json:"cost_usd"`

	// Page and property counts summed over finished batches.
	PagesTotal       int `json:"pages_total"`
	PropertiesScored int `json:"properties_scored"`
	PagesFailed      int `json:"pages_failed"`
	Unmatched        int `json:"unmatched"`

	// Provider circuit breakers at collection time.
	Providers []resilience.BreakerStatus `json:"providers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// BatchLister is the slice of store.Store the collector reads.
type BatchLister interface {
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]model.ScoringBatch, error)
}

// BreakerReporter reports provider circuit breaker state.
// *resilience.ProviderBreakers satisfies it.
type BreakerReporter interface {
	Statuses() []resilience.BreakerStatus
}

// Collector gathers batch metrics from the store and, when breakers is
// set, the provider breaker states.
type Collector struct {
	store    BatchLister
	breakers BreakerReporter
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(st BatchLister, breakers BreakerReporter) *Collector {
	return &Collector{store: st, breakers: breakers}
}

// Collect gathers a snapshot of batch metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	batches, err := c.store.ListBatches(ctx, store.BatchFilter{Limit: maxBatches})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batches")
	}

	for _, b := range batches {
		if b.CreatedAt.Before(cutoff) {
			continue
		}
		snap.BatchTotal++
		switch b.Status {
		case model.BatchComplete:
			snap.BatchComplete++
		case model.BatchError:
			snap.BatchError++
		case model.BatchTimedOut:
			snap.BatchTimedOut++
		default:
			snap.BatchActive++
		}
		snap.CostUSD += b.ActualCost
		snap.PagesTotal += b.TotalPages
		snap.PropertiesScored += b.Stats.Scored
		snap.PagesFailed += b.Stats.Failed
		snap.Unmatched += b.Stats.Unmatched
	}

	if c.breakers != nil {
		snap.Providers = c.breakers.Statuses()
	}

	finished := snap.BatchComplete + snap.BatchError + snap.BatchTimedOut
	if finished > 0 {
		snap.FailRate = float64(snap.BatchError+snap.BatchTimedOut) / float64(finished)
	}
	return snap, nil
}
