package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/cost"
	"github.com/odgsully/renoscore/internal/dataset"
	"github.com/odgsully/renoscore/internal/document"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/pipeline"
	"github.com/odgsully/renoscore/internal/scoring"
	"github.com/odgsully/renoscore/internal/store"
)

var (
	scorePDFs         []string
	scoreProperties   string
	scoreClientID     string
	scorePersist      bool
	scoreSkipCached   bool
	scorePagesChunk   int
	scoreEstimateOnly bool
	scoreOutput       string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score flyer PDFs against a property dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pdfs, err := readPDFs(scorePDFs)
		if err != nil {
			return err
		}

		if scoreEstimateOnly {
			if err := cfg.Validate("score"); err != nil {
				return err
			}
			est, err := estimateRun(cost.NewCalculator(cfg.Pricing), cfg.Scoring.Provider, pdfs, estimateChunk())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), est)
		}

		persist := scorePersist || scoreSkipCached
		if persist && scoreClientID == "" {
			return eris.New("--client-id is required with --persist or --skip-cached")
		}

		env, err := initScoring(ctx, "score", persist)
		if err != nil {
			return err
		}
		defer env.Close()

		var records []model.PropertyRecord
		if scoreProperties != "" {
			records, err = dataset.LoadFile(ctx, scoreProperties)
			if err != nil {
				return err
			}
		}

		if scoreSkipCached {
			kept, skipped, err := store.FilterCached(ctx, env.Store, scoreClientID, records)
			if err != nil {
				return err
			}
			zap.L().Info("skipping cached records", zap.Int("skipped", skipped), zap.Int("remaining", len(kept)))
			records = kept
		}

		chunk := env.ChunkSize
		if scorePagesChunk > 0 {
			chunk = scorePagesChunk
		}
		est, err := estimateRun(env.Calculator, env.Provider.Name(), pdfs, chunk)
		if err != nil {
			return err
		}
		zap.L().Info("cost estimate",
			zap.Int("pages", est.Pages),
			zap.Int("chunks", est.Chunks),
			zap.Float64("usd", est.USD),
		)

		var batch *model.ScoringBatch
		if persist {
			batch, err = env.Store.CreateBatch(ctx, store.BatchParams{
				ClientID:      scoreClientID,
				Provider:      env.Provider.Name(),
				Model:         env.Provider.Model(),
				TotalPages:    est.Pages,
				EstimatedCost: est.USD,
				PDFPaths:      scorePDFs,
			})
			if err != nil {
				return err
			}
			zap.L().Info("batch created", zap.String("batch_id", batch.ID))
		}

		progress := make(chan model.ProgressEvent, 16)
		go logProgress(progress)

		result, runErr := env.Pipeline.Run(ctx, pipeline.Input{
			PDFs:          pdfs,
			Records:       records,
			PagesPerChunk: scorePagesChunk,
		}, progress)

		if batch != nil {
			var actual float64
			if result != nil {
				actual = env.Calculator.Actual(env.Provider.Name(), result.Usage)
			}
			if err := store.SaveResult(context.WithoutCancel(ctx), env.Store, batch, result, actual, runErr); err != nil {
				zap.L().Error("saving batch failed", zap.Error(err))
			}
		}

		if result != nil {
			zap.L().Info("scoring complete",
				zap.Int("scored", result.Stats.Scored),
				zap.Int("failed", result.Stats.Failed),
				zap.Int("unmatched", result.Stats.Unmatched),
				zap.Float64("usd", env.Calculator.Actual(env.Provider.Name(), result.Usage)),
			)
			if err := emitResult(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	scoreCmd.Flags().StringSliceVar(&scorePDFs, "pdf", nil, "flyer PDF file (repeatable, merged in order)")
	scoreCmd.Flags().StringVar(&scoreProperties, "properties", "", "property dataset (.csv or .xlsx)")
	scoreCmd.Flags().StringVar(&scoreClientID, "client-id", "", "client the batch belongs to")
	scoreCmd.Flags().BoolVar(&scorePersist, "persist", false, "save the batch, scores, and failures to the store")
	scoreCmd.Flags().BoolVar(&scoreSkipCached, "skip-cached", false, "drop records that already have a stored score (implies --persist)")
	scoreCmd.Flags().IntVar(&scorePagesChunk, "pages-per-chunk", 0, "pages per provider request (default from config/provider)")
	scoreCmd.Flags().BoolVar(&scoreEstimateOnly, "estimate-only", false, "print the cost estimate without scoring")
	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "", "write result JSON to file instead of stdout")
	_ = scoreCmd.MarkFlagRequired("pdf")
	rootCmd.AddCommand(scoreCmd)
}

func readPDFs(paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		return nil, eris.New("at least one --pdf is required")
	}
	bufs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", filepath.Base(p))
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

func estimateRun(calc *cost.Calculator, provider string, pdfs [][]byte, chunk int) (cost.Estimate, error) {
	pages, err := document.CountPages(pdfs)
	if err != nil {
		return cost.Estimate{}, err
	}
	return calc.Estimate(provider, pages, chunk), nil
}

// estimateChunk resolves the chunk size without building a provider.
func estimateChunk() int {
	if scorePagesChunk > 0 {
		return scorePagesChunk
	}
	if cfg.Scoring.PagesPerChunk > 0 {
		return cfg.Scoring.PagesPerChunk
	}
	return scoring.DefaultChunkSize(cfg.Scoring.Provider)
}

func logProgress(events <-chan model.ProgressEvent) {
	log := zap.L().With(zap.String("component", "progress"))
	for ev := range events {
		fields := []zap.Field{zap.String("stage", string(ev.Stage))}
		if ev.Total > 0 {
			fields = append(fields, zap.Int("current", ev.Current), zap.Int("total", ev.Total))
		}
		if ev.Stage == model.StageError {
			log.Warn(ev.Message, fields...)
			continue
		}
		log.Info(ev.Message, fields...)
	}
}

func emitResult(stdout io.Writer, result *model.PipelineResult) error {
	if scoreOutput == "" {
		return writeJSON(stdout, result)
	}
	f, err := os.Create(scoreOutput)
	if err != nil {
		return eris.Wrap(err, "create output file")
	}
	defer f.Close() //nolint:errcheck
	return writeJSON(f, result)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
