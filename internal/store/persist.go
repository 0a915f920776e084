package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/address"
	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
)

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "renoscore.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// AuditFailures returns the failures to record for a result: the scoring
// failures plus one unmatched_address entry per detected address that no
// record claimed.
func AuditFailures(res *model.PipelineResult) []model.ScoringFailure {
	out := make([]model.ScoringFailure, 0, len(res.Failures)+len(res.Unmatched))
	out = append(out, res.Failures...)
	for _, addr := range res.Unmatched {
		page := 0
		for _, s := range res.Scores {
			if s.DetectedAddress == addr {
				page = s.PageNumber
				break
			}
		}
		out = append(out, model.ScoringFailure{
			PageNumber: page,
			Address:    addr,
			Reason:     model.FailureUnmatchedAddress,
			Detail:     "detected address not found in property data",
		})
	}
	return out
}

// SaveResult persists a finished run against batch: scores, the failure
// audit, then the batch's final status. runErr marks the batch as errored;
// whatever partial result exists is still written.
func SaveResult(ctx context.Context, st Store, batch *model.ScoringBatch, res *model.PipelineResult, actualCost float64, runErr error) error {
	log := zap.L().With(zap.String("component", "store"), zap.String("batch_id", batch.ID))

	upd := model.BatchUpdate{Status: model.BatchComplete, ActualCost: actualCost}
	if runErr != nil {
		upd.Status = model.BatchError
		upd.Error = runErr.Error()
	}

	if res != nil {
		n, err := st.UpsertScores(ctx, batch.ID, batch.ClientID, res.Scores)
		if err != nil {
			upd.Status = model.BatchError
			upd.Error = fmt.Sprintf("saved %d of %d scores: %v", n, len(res.Scores), err)
			log.Error("store: score upsert failed", zap.Int("written", n), zap.Error(err))
		}
		if err := st.InsertFailures(ctx, batch.ID, AuditFailures(res)); err != nil {
			log.Error("store: failure audit insert failed", zap.Error(err))
		}
		upd.Stats = &res.Stats
		upd.Usage = &res.Usage
	}

	if err := st.UpdateBatch(ctx, batch.ID, upd); err != nil {
		return eris.Wrap(err, "store: finalize batch")
	}
	log.Info("store: batch saved", zap.String("status", string(upd.Status)))
	return nil
}

// FilterCached drops records that already have a stored score for clientID
// and returns the remainder with the number skipped.
func FilterCached(ctx context.Context, st Store, clientID string, records []model.PropertyRecord) ([]model.PropertyRecord, int, error) {
	addrs := make([]string, len(records))
	for i, r := range records {
		addrs[i] = r.Address
	}
	cached, err := st.CachedScores(ctx, clientID, addrs)
	if err != nil {
		return nil, 0, err
	}

	kept := make([]model.PropertyRecord, 0, len(records))
	for _, r := range records {
		if _, hit := cached[address.Normalize(r.Address)]; hit {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept), nil
}
