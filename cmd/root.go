package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "renoscore",
	Short: "Renovation scoring for property photo flyers",
	Long:  "Splits listing flyer PDFs into chunks, scores each property's renovation level with a vision model, and ties scores back to the property dataset.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
