package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/store"
)

var (
	batchesClientID string
	batchesStatus   string
	batchesLimit    int
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect persisted scoring batches",
}

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring batches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.BatchStatus(batchesStatus)
		switch status {
		case "", model.BatchPending, model.BatchScoring, model.BatchComplete, model.BatchError, model.BatchTimedOut:
		default:
			return eris.Errorf("unknown status %q", batchesStatus)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batches, err := st.ListBatches(ctx, store.BatchFilter{
			ClientID: batchesClientID,
			Status:   status,
			Limit:    batchesLimit,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), batches)
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch with its scores and failures",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batch, err := st.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		scores, err := st.ScoresByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		failures, err := st.FailuresByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}

		return writeJSON(cmd.OutOrStdout(), struct {
			Batch    *model.ScoringBatch    `json:"batch"`
			Scores   []model.StoredScore    `json:"scores"`
			Failures []model.ScoringFailure `json:"failures"`
		}{batch, scores, failures})
	},
}

func init() {
	batchesListCmd.Flags().StringVar(&batchesClientID, "client-id", "", "filter by client")
	batchesListCmd.Flags().StringVar(&batchesStatus, "status", "", "filter by status (pending, scoring, complete, error, timed_out)")
	batchesListCmd.Flags().IntVar(&batchesLimit, "limit", 20, "maximum batches to list")
	batchesCmd.AddCommand(batchesListCmd, batchesShowCmd)
	rootCmd.AddCommand(batchesCmd)
}
