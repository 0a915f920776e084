package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/odgsully/renoscore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	input_tokens   INTEGER NOT NULL DEFAULT 0,
	output_tokens  INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	actual_cost    REAL NOT NULL DEFAULT 0,
	pdf_paths      TEXT NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	completed_at   DATETIME
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
	payload            BLOB NOT NULL,
	scored_at          DATETIME NOT NULL,
	PRIMARY KEY (client_id, address_normalized)
);

CREATE TABLE IF NOT EXISTS scoring_failures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id    TEXT NOT NULL REFERENCES scoring_batches(id),
	page_number INTEGER NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_client ON scoring_batches(client_id, created_at);
CREATE INDEX IF NOT EXISTS idx_batches_status ON scoring_batches(status);
CREATE INDEX IF NOT EXISTS idx_scores_batch ON vision_scores(batch_id);
CREATE INDEX IF NOT EXISTS idx_failures_batch ON scoring_failures(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, p BatchParams) (*model.ScoringBatch, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paths, err := encodePaths(p.PDFPaths)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_batches (id, client_id, status, provider, model, total_pages, estimated_cost, pdf_paths, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ClientID, string(model.BatchScoring), p.Provider, p.Model, p.TotalPages, p.EstimatedCost, string(paths), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
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

func (s *SQLiteStore) UpdateBatch(ctx context.Context, batchID string, upd model.BatchUpdate) error {
	query, args, err := batchUpdateSQL(batchID, upd, time.Now().UTC(), func(int) string { return "?" })
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.ScoringBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM scoring_batches WHERE id = ?`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", batchID)
	}
	return b, eris.Wrapf(err, "sqlite: get batch %s", batchID)
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.ScoringBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM scoring_batches WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close() //nolint:errcheck

	var batches []model.ScoringBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) LatestBatch(ctx context.Context, clientID string) (*model.ScoringBatch, error) {
	batches, err := s.ListBatches(ctx, BatchFilter{ClientID: clientID, Limit: 1})
	if err != nil || len(batches) == 0 {
		return nil, err
	}
	return &batches[0], nil
}

func (s *SQLiteStore) RecoverStaleBatches(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE scoring_batches SET status = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE status = ? AND updated_at < ?`,
		string(model.BatchTimedOut), staleMessage(olderThan), now, now,
		string(model.BatchScoring), now.Add(-olderThan),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: recover stale batches")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		zap.L().Warn("store: marked stale batches timed out", zap.Int64("count", n))
	}
	return int(n), nil
}

func (s *SQLiteStore) UpsertScores(ctx context.Context, batchID, clientID string, scores []model.PropertyScore) (int, error) {
	rows, err := scoreRows(batchID, clientID, scores, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(scoreColumns)), ", ")
	var updates []string
	for _, c := range scoreColumns {
		if c != "client_id" && c != "address_normalized" {
			updates = append(updates, c+" = excluded."+c)
		}
	}
	stmt := `INSERT INTO vision_scores (` + strings.Join(scoreColumns, ", ") + `) VALUES (` + placeholders + `)
		ON CONFLICT (client_id, address_normalized) DO UPDATE SET ` + strings.Join(updates, ", ")

	written := 0
	for start := 0; start < len(rows); start += scoreChunkSize {
		end := min(start+scoreChunkSize, len(rows))
		if err := s.upsertChunk(ctx, stmt, rows[start:end]); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

func (s *SQLiteStore) upsertChunk(ctx context.Context, stmt string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin score upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare score upsert")
	}
	defer prepared.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert score %v", row[3])
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit score upsert")
}

func (s *SQLiteStore) ScoresByBatch(ctx context.Context, batchID string) ([]model.StoredScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, client_id, address_normalized, payload, scored_at FROM vision_scores
		WHERE batch_id = ? ORDER BY page_number`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scores by batch")
	}
	defer rows.Close() //nolint:errcheck
	return collectScores(rows)
}

func (s *SQLiteStore) CachedScores(ctx context.Context, clientID string, addresses []string) (map[string]model.StoredScore, error) {
	keys := normalizeAll(addresses)
	out := make(map[string]model.StoredScore, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := []any{clientID}
	for _, k := range keys {
		args = append(args, k)
	}
	query := `SELECT batch_id, client_id, address_normalized, payload, scored_at FROM vision_scores
		WHERE client_id = ? AND address_normalized IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cached scores")
	}
	defer rows.Close() //nolint:errcheck

	scores, err := collectScores(rows)
	if err != nil {
		return nil, err
	}
	for _, sc := range scores {
		out[sc.AddressNormalized] = sc
	}
	return out, nil
}

func (s *SQLiteStore) InsertFailures(ctx context.Context, batchID string, failures []model.ScoringFailure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin failure insert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, f := range failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scoring_failures (batch_id, page_number, address, reason, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			batchID, f.PageNumber, f.Address, string(f.Reason), f.Detail, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert failure for page %d", f.PageNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit failures")
}

func (s *SQLiteStore) FailuresByBatch(ctx context.Context, batchID string) ([]model.ScoringFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_number, address, reason, detail FROM scoring_failures WHERE batch_id = ? ORDER BY page_number, id`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: failures by batch")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScoringFailure
	for rows.Next() {
		var f model.ScoringFailure
		var reason string
		if err := rows.Scan(&f.PageNumber, &f.Address, &reason, &f.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		f.Reason = model.FailureReason(reason)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: failures iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.ScoringBatch, error) {
	var (
		b         model.ScoringBatch
		status    string
		paths     []byte
		completed sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.ClientID, &status, &b.Provider, &b.Model, &b.TotalPages,
		&b.Stats.Scored, &b.Stats.Failed, &b.Stats.Unmatched,
		&b.Usage.InputTokens, &b.Usage.OutputTokens, &b.EstimatedCost, &b.ActualCost,
		&paths, &b.Error, &b.CreatedAt, &b.UpdatedAt, &completed,
	)
	if err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	b.Stats.TotalPages = b.TotalPages
	b.PDFPaths = decodePaths(paths)
	if completed.Valid {
		t := completed.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

func collectScores(rows *sql.Rows) ([]model.StoredScore, error) {
	var out []model.StoredScore
	for rows.Next() {
		var (
			sc      model.StoredScore
			payload []byte
		)
		if err := rows.Scan(&sc.BatchID, &sc.ClientID, &sc.AddressNormalized, &payload, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		score, err := decodeScore(payload)
		if err != nil {
			return nil, err
		}
		sc.Score = score
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: scores iterate")
}
