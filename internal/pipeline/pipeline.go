// Package pipeline runs the full flyer scoring flow: assemble, extract text,
// match addresses, classify dwellings, score, reconcile.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/address"
	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/document"
	"github.com/odgsully/renoscore/internal/dwelling"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/ocr"
	"github.com/odgsully/renoscore/internal/reconcile"
	"github.com/odgsully/renoscore/internal/scoring"
)

// Input is one scoring run.
type Input struct {
	PDFs    [][]byte
	Records []model.PropertyRecord

	// PagesPerChunk overrides the configured chunk size when > 0.
	PagesPerChunk int
	// Classifications overrides dwelling classification per record key.
	Classifications map[string]model.DwellingClassification
}

// Pipeline holds the stage dependencies. It keeps no state between runs.
type Pipeline struct {
	provider  scoring.Provider
	text      ocr.Extractor
	extractor *address.Extractor
	chunkSize int
	opts      scoring.Options
}

// New creates a Pipeline from config with the given provider and text source.
func New(cfg *config.Config, provider scoring.Provider, text ocr.Extractor) *Pipeline {
	chunkSize := cfg.Scoring.PagesPerChunk
	if chunkSize <= 0 {
		chunkSize = scoring.DefaultChunkSize(provider.Name())
	}
	region := address.DefaultRegion
	if cfg.Text.RegionState != "" {
		region = address.Region{State: cfg.Text.RegionState}
	}
	return &Pipeline{
		provider:  provider,
		text:      text,
		extractor: address.NewExtractor(region),
		chunkSize: chunkSize,
		opts:      scoring.OptionsFromConfig(cfg.Scoring),
	}
}

// WithOptions returns a copy of p using opts for scoring.
func (p *Pipeline) WithOptions(opts scoring.Options) *Pipeline {
	cp := *p
	cp.opts = opts
	return &cp
}

// Run scores every page of in.PDFs and streams progress events. progress may
// be nil; otherwise it is closed before Run returns. Zero pages returns
// document.ErrNoPages after an error event. When ctx is canceled during
// scoring, the partial result is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, in Input, progress chan<- model.ProgressEvent) (*model.PipelineResult, error) {
	if progress != nil {
		defer close(progress)
	}
	emit := func(ev model.ProgressEvent) {
		if progress == nil {
			return
		}
		select {
		case progress <- ev:
		case <-ctx.Done():
		}
	}
	fail := func(err error) error {
		emit(model.ProgressEvent{Stage: model.StageError, Message: err.Error(), Error: err.Error()})
		return err
	}

	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("provider", p.provider.Name()),
		zap.Int("inputs", len(in.PDFs)),
		zap.Int("records", len(in.Records)),
	)
	log.Info("pipeline: starting run")

	chunkSize := p.chunkSize
	if in.PagesPerChunk > 0 {
		chunkSize = in.PagesPerChunk
	}

	// Assemble
	emit(model.ProgressEvent{Stage: model.StagePDFConcatenating, Message: fmt.Sprintf("Merging %d PDF(s)", len(in.PDFs))})
	asm, err := document.Assemble(in.PDFs, chunkSize)
	if err != nil {
		if errors.Is(err, document.ErrNoPages) {
			return nil, fail(err)
		}
		return nil, fail(eris.Wrap(err, "pipeline: assemble"))
	}
	emit(model.ProgressEvent{
		Stage:   model.StagePDFSplitting,
		Message: fmt.Sprintf("Split %d pages into %d chunks of up to %d", asm.TotalPages, len(asm.Chunks), chunkSize),
		Current: len(asm.Chunks),
		Total:   asm.TotalPages,
	})

	// Text
	emit(model.ProgressEvent{Stage: model.StageTextExtracting, Message: "Extracting page text", Total: asm.TotalPages})
	pages, err := p.text.ExtractPages(ctx, asm.Merged)
	if err != nil {
		// Address detection falls back to the provider's detected addresses.
		log.Warn("pipeline: text extraction failed", zap.Error(err))
		pages = nil
	}

	// Addresses
	pageAddrs := p.extractor.ExtractAddresses(pages, 1)
	matches := address.Match(pageAddrs, in.Records)
	emit(model.ProgressEvent{
		Stage:   model.StageAddressMapping,
		Message: fmt.Sprintf("Found %d addresses, matched %d to records", len(pageAddrs), len(matches)),
		Current: len(matches),
		Total:   asm.TotalPages,
	})

	// Dwelling types
	classes := dwelling.ClassifyAll(in.Records)
	for k, c := range in.Classifications {
		classes[k] = c
	}
	multi := 0
	for _, c := range classes {
		if c.IsMultifamily() {
			multi++
		}
	}
	emit(model.ProgressEvent{
		Stage:   model.StageDwellingDetecting,
		Message: fmt.Sprintf("Classified %d properties (%d multifamily)", len(classes), multi),
		Current: multi,
		Total:   len(classes),
	})

	// Score
	opts := p.opts
	opts.Classifications = classes
	opts.Progress = progress
	outcome := scoring.NewOrchestrator(p.provider).Score(ctx, asm.Chunks, matches, opts)

	// Reconcile
	rec := reconcile.Reconcile(reconcile.Input{
		Scores:        outcome.Scores,
		Failures:      outcome.Failures,
		PageAddresses: pageAddrs,
		Matches:       matches,
		Records:       in.Records,
		TotalPages:    asm.TotalPages,
		Usage:         outcome.Usage,
	})
	result := rec.Result
	result.Provider = p.provider.Name()
	result.Model = p.provider.Model()

	log.Info("pipeline: run complete",
		zap.Int("pages", result.Stats.TotalPages),
		zap.Int("scored", result.Stats.Scored),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("unmatched", result.Stats.Unmatched),
	)

	if outcome.Canceled {
		return result, fail(eris.Wrap(ctx.Err(), "pipeline: canceled"))
	}

	emit(model.ProgressEvent{
		Stage: model.StageScoringComplete,
		Message: fmt.Sprintf("Scoring complete: %d scored, %d failed, %d unmatched",
			result.Stats.Scored, result.Stats.Failed, result.Stats.Unmatched),
		Current: result.Stats.Scored,
		Total:   result.Stats.TotalPages,
		Result:  result,
	})
	return result, nil
}
