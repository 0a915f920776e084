package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/dwelling"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/prompt"
	"github.com/odgsully/renoscore/internal/resilience"
)

const (
	DefaultConcurrency    = 5
	DefaultMaxRetries     = 1
	DefaultRequestTimeout = 120 * time.Second

	minRenoYear      = 1950
	renoYearLookhead = 5
)

// Options tunes a scoring run.
type Options struct {
	Concurrency    int           // max provider calls in flight
	MaxRetries     int           // whole-chunk retries after the first attempt
	RequestTimeout time.Duration // per provider call
	RetryBackoff   time.Duration // initial delay between attempts

	// Classifications overrides dwelling.Classify per record key.
	Classifications map[string]model.DwellingClassification
	// Progress receives batch and per-page events. Sends are abandoned when
	// ctx is done.
	Progress chan<- model.ProgressEvent
	Now      func() time.Time
}

// DefaultOptions returns the default scoring options.
func DefaultOptions() Options {
	return Options{
		Concurrency:    DefaultConcurrency,
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// OptionsFromConfig maps scoring settings onto Options.
func OptionsFromConfig(cfg config.ScoringConfig) Options {
	opts := DefaultOptions()
	if cfg.Concurrency > 0 {
		opts.Concurrency = cfg.Concurrency
	}
	opts.MaxRetries = cfg.MaxRetries
	if cfg.RequestTimeoutSecs > 0 {
		opts.RequestTimeout = time.Duration(cfg.RequestTimeoutSecs) * time.Second
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ScoreOutcome collects everything a scoring run produced. Scores and
// Failures are in completion order. LenientParses counts provider responses
// that only decoded after cleanup.
type ScoreOutcome struct {
	Scores        []model.PropertyScore
	Failures      []model.ScoringFailure
	Usage         model.Usage
	LenientParses int
	Canceled      bool
}

// Orchestrator fans chunks out to a provider.
type Orchestrator struct {
	provider Provider
}

// NewOrchestrator creates an Orchestrator for p.
func NewOrchestrator(p Provider) *Orchestrator {
	return &Orchestrator{provider: p}
}

// Score sends every chunk to the provider with at most opts.Concurrency
// calls in flight. It returns after all admitted chunks finish. When ctx is
// canceled no further chunks are admitted; their pages are recorded as
// canceled failures and results gathered so far are kept.
func (o *Orchestrator) Score(ctx context.Context, chunks []model.DocumentChunk, matches model.AddressMatches, opts Options) *ScoreOutcome {
	opts = opts.withDefaults()
	log := zap.L().With(
		zap.String("component", "scoring.orchestrator"),
		zap.String("provider", o.provider.Name()),
		zap.String("model", o.provider.Model()),
	)

	totalPages := 0
	for _, c := range chunks {
		totalPages += c.PageCount
	}

	var (
		mu        sync.Mutex
		out       = &ScoreOutcome{}
		completed int
	)

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	start := time.Now()
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			mu.Lock()
			for _, skipped := range chunks[i:] {
				out.Failures = append(out.Failures, failPages(skipped.Pages(), model.FailureCanceled, "scoring canceled before chunk was sent")...)
			}
			mu.Unlock()
			break
		}

		g.Go(func() error {
			res := o.scoreChunk(ctx, chunk, matches, opts, log)

			mu.Lock()
			out.Scores = append(out.Scores, res.scores...)
			out.Failures = append(out.Failures, res.failures...)
			out.Usage = out.Usage.Add(res.usage)
			out.LenientParses += res.lenient
			completed++
			current := completed
			mu.Unlock()

			emitChunk(ctx, opts.Progress, chunk, res, current, len(chunks), totalPages)
			return nil
		})
	}
	_ = g.Wait()

	out.Canceled = ctx.Err() != nil
	log.Info("scoring complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("scored", len(out.Scores)),
		zap.Int("failed", len(out.Failures)),
		zap.Int64("input_tokens", out.Usage.InputTokens),
		zap.Int64("output_tokens", out.Usage.OutputTokens),
		zap.Int("lenient_parses", out.LenientParses),
		zap.Bool("canceled", out.Canceled),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out
}

type chunkResult struct {
	scores   []model.PropertyScore
	failures []model.ScoringFailure
	usage    model.Usage
	attempts int
	lenient  int
}

// chunkFailure is a failure that applies to every unscored page of a chunk.
type chunkFailure struct {
	reason model.FailureReason
	detail string
}

func (o *Orchestrator) scoreChunk(ctx context.Context, chunk model.DocumentChunk, matches model.AddressMatches, opts Options, log *zap.Logger) chunkResult {
	pages := chunk.Pages()
	if len(pages) == 0 {
		return chunkResult{}
	}
	if ctx.Err() != nil {
		return chunkResult{failures: failPages(pages, model.FailureCanceled, "scoring canceled before chunk was sent")}
	}

	log = log.With(zap.Int("start_page", chunk.StartPage), zap.Int("end_page", chunk.EndPage))

	class := representative(chunk, matches, opts.Classifications)
	p := prompt.Build(class)
	base := p.Instructions + "\n\n" + prompt.PageCountInstruction(len(pages))
	year := opts.Now().Year()

	var (
		res        chunkResult
		best       = make(map[int]model.PropertyScore, len(pages))
		pageFails  map[int]model.ScoringFailure
		whole      *chunkFailure
		lastReason model.FailureReason
	)

	retryCfg := resilience.ChunkRetryConfig(opts.MaxRetries, opts.RetryBackoff)
	retryCfg.OnRetry = resilience.RetryLogger(o.provider.Name(), zap.Int("start_page", chunk.StartPage))

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		res.attempts++
		text := base
		if res.attempts > 1 {
			if extra := prompt.RetryInstruction(lastReason); extra != "" {
				text += "\n\n" + extra
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		defer cancel()

		resp, err := o.provider.ScoreDocument(reqCtx, Request{System: p.System, Prompt: text, Document: chunk.Content})
		if resp != nil {
			res.usage = res.usage.Add(resp.Usage)
		}
		if err != nil {
			lastReason = model.FailureAPI
			whole = &chunkFailure{reason: model.FailureAPI, detail: err.Error()}
			return err
		}

		switch parsed := Parse(resp.Text).(type) {
		case ParseError:
			lastReason = model.FailureJSONParse
			whole = &chunkFailure{reason: model.FailureJSONParse, detail: parsed.Err.Error()}
			return parsed.Err
		case Parsed:
			whole = nil
			if parsed.Lenient {
				res.lenient++
				log.Debug("provider response needed cleanup before decoding", zap.Int("attempt", res.attempts))
			}
			pageFails = assign(parsed.Items, pages, class, matches, year, best)
			if len(pageFails) == 0 {
				return nil
			}
			lastReason = dominantReason(pageFails)
			return eris.Errorf("scoring: %d of %d pages unscored", len(pageFails), len(pages))
		}
		return nil
	})

	if whole != nil && whole.reason == model.FailureAPI && ctx.Err() != nil {
		whole = &chunkFailure{reason: model.FailureCanceled, detail: ctx.Err().Error()}
	}

	for _, page := range pages {
		if s, ok := best[page]; ok {
			res.scores = append(res.scores, s)
			continue
		}
		switch {
		case whole != nil:
			res.failures = append(res.failures, failure(page, matches, whole.reason, whole.detail))
		case pageFails != nil && pageFails[page].Reason != "":
			res.failures = append(res.failures, pageFails[page])
		default:
			res.failures = append(res.failures, failure(page, matches, model.FailureAPI, "no result"))
		}
	}

	if err != nil {
		log.Warn("chunk finished with failures",
			zap.Int("attempts", res.attempts),
			zap.Int("scored", len(res.scores)),
			zap.Int("failed", len(res.failures)),
			zap.Error(err))
	} else {
		log.Debug("chunk scored", zap.Int("attempts", res.attempts), zap.Int("scored", len(res.scores)))
	}
	return res
}

// assign maps response items onto pages by position, clamping extra items
// to the last page. Pages already in best keep their score. It returns a
// failure for every page still without a valid score.
func assign(items []RawScore, pages []int, class model.DwellingClassification, matches model.AddressMatches, year int, best map[int]model.PropertyScore) map[int]model.ScoringFailure {
	fails := make(map[int]model.ScoringFailure)
	for i, raw := range items {
		page := pages[min(i, len(pages)-1)]
		if _, done := best[page]; done {
			continue
		}
		score, detail, ok := validateScore(raw.RenovationScore)
		if !ok {
			if _, seen := fails[page]; !seen {
				f := failure(page, matches, model.FailureScoreOutOfRange, detail)
				if f.Address == "" {
					f.Address = strings.TrimSpace(raw.DetectedAddress)
				}
				fails[page] = f
			}
			continue
		}
		best[page] = buildScore(raw, page, score, renoYear(raw.RenoYearEstimate, year), class, matches)
		delete(fails, page)
	}

	for _, page := range pages {
		if _, ok := best[page]; ok {
			continue
		}
		if _, ok := fails[page]; !ok {
			fails[page] = failure(page, matches, model.FailureJSONParse,
				fmt.Sprintf("response had %d results for %d pages", len(items), len(pages)))
		}
	}
	return fails
}

// dominantReason picks the failure reason that drives the retry instruction.
func dominantReason(fails map[int]model.ScoringFailure) model.FailureReason {
	for _, f := range fails {
		if f.Reason == model.FailureScoreOutOfRange {
			return f.Reason
		}
	}
	return model.FailureJSONParse
}

// validateScore accepts integers in [1,10] and rounds values within half a
// point of that range.
func validateScore(v *float64) (int, string, bool) {
	if v == nil {
		return 0, "renovation_score missing", false
	}
	if *v < 0.5 || *v > 10.5 {
		return 0, fmt.Sprintf("score %g is outside valid range 1-10", *v), false
	}
	return clampScore(*v), "", true
}

func clampScore(v float64) int {
	return max(1, min(10, int(math.Round(v))))
}

// renoYear drops estimates outside [1950, year+5].
func renoYear(v *float64, year int) *int {
	if v == nil {
		return nil
	}
	y := int(math.Round(*v))
	if y < minRenoYear || y > year+renoYearLookhead {
		return nil
	}
	return &y
}

func confidence(s string) model.Confidence {
	switch c := model.Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
		return c
	}
	return model.ConfidenceMedium
}

func rooms(raw []RawRoom) []model.RoomScore {
	out := make([]model.RoomScore, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.RoomScore{Type: r.Type, Observations: r.Observations, Score: clampScore(r.Score)})
	}
	return out
}

func buildScore(raw RawScore, page, score int, reno *int, class model.DwellingClassification, matches model.AddressMatches) model.PropertyScore {
	s := model.PropertyScore{
		DetectedAddress:  strings.TrimSpace(raw.DetectedAddress),
		PageNumber:       page,
		Score:            score,
		RenoYearEstimate: reno,
		Confidence:       confidence(raw.Confidence),
		EraBaseline:      raw.EraBaseline,
		Reasoning:        raw.Reasoning,
		Rooms:            rooms(raw.Rooms),
	}
	if m, ok := matches[page]; ok && m.Record != nil {
		s.Address = m.Record.Address
		s.ParcelID = m.Record.ParcelID
		s.MLSNumber = m.Record.MLSNumber
		s.MatchTier = m.Tier
	}

	if len(raw.UnitScores) > 0 {
		s.UnitScores = make([]model.UnitScore, 0, len(raw.UnitScores))
		for _, u := range raw.UnitScores {
			s.UnitScores = append(s.UnitScores, model.UnitScore{Unit: u.Unit, Rooms: rooms(u.Rooms), Score: clampScore(u.Score)})
		}
		s.UnitsShown = raw.UnitsShown
		s.MixedConditionFlag = raw.MixedConditionFlag
		s.PropertySubType = class.SubType
		s.PerUnitPrice = class.PerUnitPrice
		if raw.PerDoorPrice != nil && *raw.PerDoorPrice > 0 {
			s.PerUnitPrice = raw.PerDoorPrice
		}
	}
	if raw.Exterior != nil {
		s.Exterior = &model.RoomScore{
			Type:         "exterior",
			Observations: raw.Exterior.Observations,
			Score:        clampScore(raw.Exterior.Score),
		}
	}
	return s
}

// representative returns the classification of the first matched record in
// the chunk's page range, or the residential default.
func representative(chunk model.DocumentChunk, matches model.AddressMatches, overrides map[string]model.DwellingClassification) model.DwellingClassification {
	for _, page := range chunk.Pages() {
		m, ok := matches[page]
		if !ok || m.Record == nil {
			continue
		}
		if c, ok := overrides[m.Record.Key()]; ok {
			return c
		}
		return dwelling.Classify(*m.Record)
	}
	return model.DefaultClassification()
}

func failure(page int, matches model.AddressMatches, reason model.FailureReason, detail string) model.ScoringFailure {
	f := model.ScoringFailure{PageNumber: page, Reason: reason, Detail: detail}
	if m, ok := matches[page]; ok {
		f.Address = m.MatchedAddress
	}
	return f
}

func failPages(pages []int, reason model.FailureReason, detail string) []model.ScoringFailure {
	out := make([]model.ScoringFailure, 0, len(pages))
	for _, p := range pages {
		out = append(out, model.ScoringFailure{PageNumber: p, Reason: reason, Detail: detail})
	}
	return out
}

func emitChunk(ctx context.Context, ch chan<- model.ProgressEvent, chunk model.DocumentChunk, res chunkResult, current, total, totalPages int) {
	if ch == nil {
		return
	}
	send(ctx, ch, model.ProgressEvent{
		Stage:   model.StageScoringBatch,
		Message: fmt.Sprintf("Scored pages %d-%d (%d ok, %d failed)", chunk.StartPage, chunk.EndPage, len(res.scores), len(res.failures)),
		Current: current,
		Total:   total,
	})

	scores := append([]model.PropertyScore(nil), res.scores...)
	sort.Slice(scores, func(i, j int) bool { return scores[i].PageNumber < scores[j].PageNumber })
	for i := range scores {
		s := scores[i]
		label := s.Address
		if label == "" {
			label = s.DetectedAddress
		}
		send(ctx, ch, model.ProgressEvent{
			Stage:   model.StageScoringProperty,
			Message: fmt.Sprintf("Page %d: %s scored %d/10", s.PageNumber, label, s.Score),
			Current: s.PageNumber,
			Total:   totalPages,
			Score:   &s,
		})
	}
}

func send(ctx context.Context, ch chan<- model.ProgressEvent, ev model.ProgressEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
