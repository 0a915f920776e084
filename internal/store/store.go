// Package store persists scoring batches, their scores, and failure audits.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/model"
)

// ErrNotFound is wrapped by lookups and updates that match no batch.
var ErrNotFound = eris.New("not found")

// StaleBatchAge is how long a batch may sit in scoring before recovery
// marks it timed out.
const StaleBatchAge = 10 * time.Minute

// scoreChunkSize bounds the rows written per upsert transaction.
const scoreChunkSize = 100

// BatchParams describes a batch at creation time.
type BatchParams struct {
	ClientID      string
	Provider      string
	Model         string
	TotalPages    int
	EstimatedCost float64
	PDFPaths      []string
}

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	ClientID string            `json:"client_id,omitempty"`
	Status   model.BatchStatus `json:"status,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// Store defines the persistence interface for scoring runs.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, p BatchParams) (*model.ScoringBatch, error)
	UpdateBatch(ctx context.Context, batchID string, upd model.BatchUpdate) error
	GetBatch(ctx context.Context, batchID string) (*model.ScoringBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.ScoringBatch, error)
	LatestBatch(ctx context.Context, clientID string) (*model.ScoringBatch, error)
	RecoverStaleBatches(ctx context.Context, olderThan time.Duration) (int, error)

	// Scores
	UpsertScores(ctx context.Context, batchID, clientID string, scores []model.PropertyScore) (int, error)
	ScoresByBatch(ctx context.Context, batchID string) ([]model.StoredScore, error)
	CachedScores(ctx context.Context, clientID string, addresses []string) (map[string]model.StoredScore, error)

	// Failure audit
	InsertFailures(ctx context.Context, batchID string, failures []model.ScoringFailure) error
	FailuresByBatch(ctx context.Context, batchID string) ([]model.ScoringFailure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
