package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/store"
)

func storeConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "renoscore.db")
	return c
}

func seedBatch(t *testing.T, c *config.Config) *model.ScoringBatch {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	batch, err := st.CreateBatch(ctx, store.BatchParams{
		ClientID:   "client-1",
		Provider:   config.ProviderGemini,
		Model:      "gemini-2.5-flash",
		TotalPages: 2,
		PDFPaths:   []string{"flyers.pdf"},
	})
	require.NoError(t, err)

	_, err = st.UpsertScores(ctx, batch.ID, "client-1", []model.PropertyScore{
		{Address: "123 N Main St, Phoenix, AZ 85001", DetectedAddress: "123 N MAIN ST", PageNumber: 1, Score: 7, Confidence: model.ConfidenceHigh},
	})
	require.NoError(t, err)
	require.NoError(t, st.InsertFailures(ctx, batch.ID, []model.ScoringFailure{
		{PageNumber: 2, Reason: model.FailureUnmatchedAddress, Detail: "no match"},
	}))
	return batch
}

func TestBatchesList(t *testing.T) {
	cfg = storeConfig(t)
	batch := seedBatch(t, cfg)

	var out bytes.Buffer
	batchesListCmd.SetOut(&out)
	batchesListCmd.SetContext(context.Background())
	defer batchesListCmd.SetOut(nil)
	defer batchesListCmd.SetContext(nil)

	batchesClientID = "client-1"
	batchesLimit = 20
	defer func() { batchesClientID = "" }()

	require.NoError(t, batchesListCmd.RunE(batchesListCmd, nil))

	var got []model.ScoringBatch
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, batch.ID, got[0].ID)
}

func TestBatchesList_UnknownStatus(t *testing.T) {
	cfg = storeConfig(t)
	batchesListCmd.SetContext(context.Background())
	defer batchesListCmd.SetContext(nil)

	batchesStatus = "bogus"
	defer func() { batchesStatus = "" }()

	err := batchesListCmd.RunE(batchesListCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "bogus"`)
}

func TestBatchesShow(t *testing.T) {
	cfg = storeConfig(t)
	batch := seedBatch(t, cfg)

	var out bytes.Buffer
	batchesShowCmd.SetOut(&out)
	batchesShowCmd.SetContext(context.Background())
	defer batchesShowCmd.SetOut(nil)
	defer batchesShowCmd.SetContext(nil)

	require.NoError(t, batchesShowCmd.RunE(batchesShowCmd, []string{batch.ID}))

	var got struct {
		Batch    model.ScoringBatch     `json:"batch"`
		Scores   []model.StoredScore    `json:"scores"`
		Failures []model.ScoringFailure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, batch.ID, got.Batch.ID)
	require.Len(t, got.Scores, 1)
	assert.Equal(t, 7, got.Scores[0].Score.Score)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, model.FailureUnmatchedAddress, got.Failures[0].Reason)
}

func TestBatchesShow_NotFound(t *testing.T) {
	cfg = storeConfig(t)
	batchesShowCmd.SetContext(context.Background())
	defer batchesShowCmd.SetContext(nil)

	err := batchesShowCmd.RunE(batchesShowCmd, []string{"missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatchesList_NoDatabaseURL(t *testing.T) {
	cfg = &config.Config{}
	batchesListCmd.SetContext(context.Background())
	defer batchesListCmd.SetContext(nil)

	err := batchesListCmd.RunE(batchesListCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestRecoverCmd(t *testing.T) {
	cfg = storeConfig(t)
	batch := seedBatch(t, cfg)

	recoverCmd.SetContext(context.Background())
	defer recoverCmd.SetContext(nil)

	// Zero age treats every scoring batch as stale.
	recoverOlderThan = 0
	defer func() { recoverOlderThan = store.StaleBatchAge }()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, recoverCmd.RunE(recoverCmd, nil))

	st, err := store.Open(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	got, err := st.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchTimedOut, got.Status)
}
