package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/db"
	"github.com/odgsully/renoscore/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scoring_batches (
	id             TEXT PRIMARY KEY,
	client_id      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	provider       TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	total_pages    INTEGER NOT NULL DEFAULT 0,
	scored         INTEGER NOT NULL DEFAULT 0,
	failed         INTEGER NOT NULL DEFAULT 0,
	unmatched      INTEGER NOT NULL DEFAULT 0,
	input_tokens   BIGINT NOT NULL DEFAULT 0,
	output_tokens  BIGINT NOT NULL DEFAULT 0,
	estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	actual_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
	pdf_paths      JSONB NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS vision_scores (
	batch_id           TEXT NOT NULL REFERENCES scoring_batches(id),
	client_id          TEXT NOT NULL,
	address            TEXT NOT NULL DEFAULT '',
	address_normalized TEXT NOT NULL,
	detected_address   TEXT NOT NULL DEFAULT '',
	page_number        INTEGER NOT NULL,
	renovation_score   INTEGER NOT NULL,
	reno_year_estimate INTEGER,
	confidence         TEXT NOT NULL,
	parcel_id          TEXT NOT NULL DEFAULT '',
	mls_number         TEXT NOT NULL DEFAULT '',
	match_tier         TEXT NOT NULL DEFAULT '',
	payload            JSONB NOT NULL,
	scored_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (client_id, address_normalized)
);

CREATE TABLE IF NOT EXISTS scoring_failures (
	id          BIGSERIAL PRIMARY KEY,
	batch_id    TEXT NOT NULL REFERENCES scoring_batches(id),
	page_number INTEGER NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batches_client ON scoring_batches(client_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_batches_status ON scoring_batches(status);
CREATE INDEX IF NOT EXISTS idx_scores_batch ON vision_scores(batch_id);
CREATE INDEX IF NOT EXISTS idx_failures_batch ON scoring_failures(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, p BatchParams) (*model.ScoringBatch, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paths, err := encodePaths(p.PDFPaths)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scoring_batches (id, client_id, status, provider, model, total_pages, estimated_cost, pdf_paths, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, p.ClientID, string(model.BatchScoring), p.Provider, p.Model, p.TotalPages, p.EstimatedCost, paths, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert batch")
	}

	return &model.ScoringBatch{
		ID:            id,
		ClientID:      p.ClientID,
		Status:        model.BatchScoring,
		Provider:      p.Provider,
		Model:         p.Model,
		TotalPages:    p.TotalPages,
		Stats:         model.Stats{TotalPages: p.TotalPages},
		EstimatedCost: p.EstimatedCost,
		PDFPaths:      p.PDFPaths,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func (s *PostgresStore) UpdateBatch(ctx context.Context, batchID string, upd model.BatchUpdate) error {
	query, args, err := batchUpdateSQL(batchID, upd, time.Now().UTC(), dollar)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch %s", batchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "batch %s", batchID)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*model.ScoringBatch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM scoring_batches WHERE id = $1`, batchID)
	b, err := scanPgBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", batchID)
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.ScoringBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM scoring_batches WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += ` AND client_id = ` + dollar(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + dollar(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT ` + dollar(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.ScoringBatch
	for rows.Next() {
		b, err := scanPgBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) LatestBatch(ctx context.Context, clientID string) (*model.ScoringBatch, error) {
	batches, err := s.ListBatches(ctx, BatchFilter{ClientID: clientID, Limit: 1})
	if err != nil || len(batches) == 0 {
		return nil, err
	}
	return &batches[0], nil
}

func (s *PostgresStore) RecoverStaleBatches(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE scoring_batches SET status = $1, error = $2, updated_at = $3, completed_at = $3
		WHERE status = $4 AND updated_at < $5`,
		string(model.BatchTimedOut), staleMessage(olderThan), now,
		string(model.BatchScoring), now.Add(-olderThan),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: recover stale batches")
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		zap.L().Warn("store: marked stale batches timed out", zap.Int("count", n))
	}
	return n, nil
}

func (s *PostgresStore) UpsertScores(ctx context.Context, batchID, clientID string, scores []model.PropertyScore) (int, error) {
	rows, err := scoreRows(batchID, clientID, scores, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "vision_scores",
		Columns:      scoreColumns,
		ConflictKeys: []string{"client_id", "address_normalized"},
		ChunkSize:    scoreChunkSize,
	}, rows)
	if err != nil {
		return int(n), eris.Wrap(err, "postgres: upsert scores")
	}
	return int(n), nil
}

const scoreSelect = `SELECT batch_id, client_id, address_normalized, payload, scored_at FROM vision_scores`

func (s *PostgresStore) ScoresByBatch(ctx context.Context, batchID string) ([]model.StoredScore, error) {
	rows, err := s.pool.Query(ctx, scoreSelect+` WHERE batch_id = $1 ORDER BY page_number`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scores by batch")
	}
	defer rows.Close()
	return collectPgScores(rows)
}

func (s *PostgresStore) CachedScores(ctx context.Context, clientID string, addresses []string) (map[string]model.StoredScore, error) {
	keys := normalizeAll(addresses)
	out := make(map[string]model.StoredScore, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, scoreSelect+` WHERE client_id = $1 AND address_normalized = ANY($2)`, clientID, keys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cached scores")
	}
	defer rows.Close()

	scores, err := collectPgScores(rows)
	if err != nil {
		return nil, err
	}
	for _, sc := range scores {
		out[sc.AddressNormalized] = sc
	}
	return out, nil
}

var failureColumns = []string{"batch_id", "page_number", "address", "reason", "detail", "created_at"}

func (s *PostgresStore) InsertFailures(ctx context.Context, batchID string, failures []model.ScoringFailure) error {
	now := time.Now().UTC()
	rows := make([][]any, len(failures))
	for i, f := range failures {
		rows[i] = []any{batchID, int32(f.PageNumber), f.Address, string(f.Reason), f.Detail, now}
	}
	_, err := db.CopyFrom(ctx, s.pool, "scoring_failures", failureColumns, rows)
	return eris.Wrap(err, "postgres: insert failures")
}

func (s *PostgresStore) FailuresByBatch(ctx context.Context, batchID string) ([]model.ScoringFailure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_number, address, reason, detail FROM scoring_failures WHERE batch_id = $1 ORDER BY page_number, id`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: failures by batch")
	}
	defer rows.Close()

	var out []model.ScoringFailure
	for rows.Next() {
		var (
			f      model.ScoringFailure
			page   int32
			reason string
		)
		if err := rows.Scan(&page, &f.Address, &reason, &f.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		f.PageNumber = int(page)
		f.Reason = model.FailureReason(reason)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: failures iterate")
}

func scanPgBatch(row pgx.Row) (*model.ScoringBatch, error) {
	var (
		b                         model.ScoringBatch
		status                    string
		total, scored, failed, um int32
		paths                     []byte
		completed                 *time.Time
	)
	err := row.Scan(
		&b.ID, &b.ClientID, &status, &b.Provider, &b.Model, &total,
		&scored, &failed, &um,
		&b.Usage.InputTokens, &b.Usage.OutputTokens, &b.EstimatedCost, &b.ActualCost,
		&paths, &b.Error, &b.CreatedAt, &b.UpdatedAt, &completed,
	)
	if err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	b.TotalPages = int(total)
	b.Stats = model.Stats{TotalPages: int(total), Scored: int(scored), Failed: int(failed), Unmatched: int(um)}
	b.PDFPaths = decodePaths(paths)
	b.CompletedAt = completed
	return &b, nil
}

func collectPgScores(rows pgx.Rows) ([]model.StoredScore, error) {
	var out []model.StoredScore
	for rows.Next() {
		var (
			sc      model.StoredScore
			payload []byte
		)
		if err := rows.Scan(&sc.BatchID, &sc.ClientID, &sc.AddressNormalized, &payload, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		score, err := decodeScore(payload)
		if err != nil {
			return nil, err
		}
		sc.Score = score
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: scores iterate")
}
