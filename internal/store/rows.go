package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/address"
	"github.com/odgsully/renoscore/internal/model"
)

// scoreColumns is the column order shared by both backends' score writes.
var scoreColumns = []string{
	"batch_id", "client_id", "address", "address_normalized", "detected_address",
	"page_number", "renovation_score", "reno_year_estimate", "confidence",
	"parcel_id", "mls_number", "match_tier", "payload", "scored_at",
}

// scoreKey is the normalized address a score is stored under: the canonical
// address when resolved, else the detected one.
func scoreKey(s model.PropertyScore) string {
	if s.Address != "" {
		return address.Normalize(s.Address)
	}
	return address.Normalize(s.DetectedAddress)
}

// scoreRows turns scores into insert rows. Scores with no address are
// dropped and a later score for the same normalized address replaces an
// earlier one, so no key appears twice in a single upsert.
func scoreRows(batchID, clientID string, scores []model.PropertyScore, now time.Time) ([][]any, error) {
	index := make(map[string]int, len(scores))
	var rows [][]any
	for _, s := range scores {
		key := scoreKey(s)
		if key == "" {
			continue
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal score")
		}
		var renoYear *int64
		if s.RenoYearEstimate != nil {
			y := int64(*s.RenoYearEstimate)
			renoYear = &y
		}
		row := []any{
			batchID, clientID, s.Address, key, s.DetectedAddress,
			int64(s.PageNumber), int64(s.Score), renoYear, string(s.Confidence),
			s.ParcelID, s.MLSNumber, string(s.MatchTier), payload, now,
		}
		if i, ok := index[key]; ok {
			rows[i] = row
			continue
		}
		index[key] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeScore(payload []byte) (model.PropertyScore, error) {
	var s model.PropertyScore
	if err := json.Unmarshal(payload, &s); err != nil {
		return s, eris.Wrap(err, "store: decode score payload")
	}
	return s, nil
}

func encodePaths(paths []string) ([]byte, error) {
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	return b, eris.Wrap(err, "store: marshal pdf paths")
}

func decodePaths(b []byte) []string {
	var paths []string
	if len(b) > 0 {
		_ = json.Unmarshal(b, &paths)
	}
	return paths
}

// normalizeAll maps each input address to its normalized form, dropping
// empties.
func normalizeAll(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		n := address.Normalize(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

const batchColumns = "id, client_id, status, provider, model, total_pages, scored, failed, unmatched, " +
	"input_tokens, output_tokens, estimated_cost, actual_cost, pdf_paths, error, created_at, updated_at, completed_at"

// batchUpdateSQL builds the UPDATE for upd. ph renders the n-th (1-based)
// placeholder for the backend.
func batchUpdateSQL(batchID string, upd model.BatchUpdate, now time.Time, ph func(int) string) (string, []any, error) {
	if upd.Status == "" {
		return "", nil, eris.New("store: batch update without status")
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+ph(len(args)))
	}

	set("status", string(upd.Status))
	set("updated_at", now)
	if upd.Stats != nil {
		set("total_pages", int64(upd.Stats.TotalPages))
		set("scored", int64(upd.Stats.Scored))
		set("failed", int64(upd.Stats.Failed))
		set("unmatched", int64(upd.Stats.Unmatched))
	}
	if upd.Usage != nil {
		set("input_tokens", upd.Usage.InputTokens)
		set("output_tokens", upd.Usage.OutputTokens)
	}
	if upd.ActualCost > 0 {
		set("actual_cost", upd.ActualCost)
	}
	if upd.Error != "" {
		set("error", upd.Error)
	}
	if upd.Status.Terminal() {
		set("completed_at", now)
	}

	args = append(args, batchID)
	query := "UPDATE scoring_batches SET " + strings.Join(sets, ", ") + " WHERE id = " + ph(len(args))
	return query, args, nil
}

func staleMessage(olderThan time.Duration) string {
	return "no progress for " + olderThan.String() + "; marked timed out"
}
