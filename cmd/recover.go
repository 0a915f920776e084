package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/store"
)

var recoverOlderThan time.Duration

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Mark batches stuck in scoring as timed out",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.RecoverStaleBatches(ctx, recoverOlderThan)
		if err != nil {
			return err
		}
		zap.L().Info("stale batches recovered", zap.Int("count", n), zap.Duration("older_than", recoverOlderThan))
		return nil
	},
}

func init() {
	recoverCmd.Flags().DurationVar(&recoverOlderThan, "older-than", store.StaleBatchAge, "age after which a scoring batch is considered stale")
	rootCmd.AddCommand(recoverCmd)
}
