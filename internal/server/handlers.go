package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/dataset"
	"github.com/odgsully/renoscore/internal/document"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/monitoring"
	"github.com/odgsully/renoscore/internal/pipeline"
	"github.com/odgsully/renoscore/internal/resilience"
	"github.com/odgsully/renoscore/internal/store"
)

const defaultMaxUploadMB = 100

// scoreRequest is the parsed multipart body of a scoring request.
type scoreRequest struct {
	pdfs       [][]byte
	pdfNames   []string
	records    []model.PropertyRecord
	clientID   string
	skipCached bool
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	// Refuse before a batch exists so no batch is left in scoring.
	sse, ok := newEventWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	req, err := s.parseScoreRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	log := s.log.With(zap.String("client_id", req.clientID), zap.Int("pdfs", len(req.pdfs)))

	persist := s.deps.Store != nil && req.clientID != ""
	if persist && req.skipCached {
		kept, skipped, err := store.FilterCached(ctx, s.deps.Store, req.clientID, req.records)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info("skipping cached records", zap.Int("skipped", skipped))
		req.records = kept
	}

	var batch *model.ScoringBatch
	if persist {
		batch, err = s.createBatch(ctx, req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("X-Batch-ID", batch.ID)
	}
	sse.open()

	progress := make(chan model.ProgressEvent, 16)
	type outcome struct {
		res *model.PipelineResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.deps.Runner.Run(ctx, pipeline.Input{PDFs: req.pdfs, Records: req.records}, progress)
		done <- outcome{res, err}
	}()

	for ev := range progress {
		if err := sse.send(ev); err != nil {
			log.Debug("client went away", zap.Error(err))
		}
	}
	out := <-done

	if batch != nil {
		// The request context is gone once the client disconnects; the
		// partial result is still saved.
		saveCtx := context.WithoutCancel(ctx)
		var actual float64
		if out.res != nil && s.deps.Calculator != nil {
			actual = s.deps.Calculator.Actual(s.deps.Provider, out.res.Usage)
		}
		if err := store.SaveResult(saveCtx, s.deps.Store, batch, out.res, actual, out.err); err != nil {
			log.Error("saving batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}
	if out.err != nil {
		log.Warn("scoring run ended with error", zap.Error(out.err))
	}
}

func (s *Server) createBatch(ctx context.Context, req *scoreRequest) (*model.ScoringBatch, error) {
	pages, err := document.CountPages(req.pdfs)
	if err != nil {
		return nil, err
	}
	var estimate float64
	if s.deps.Calculator != nil {
		estimate = s.deps.Calculator.Estimate(s.deps.Provider, pages, s.deps.PagesPerChunk).USD
	}
	return s.deps.Store.CreateBatch(ctx, store.BatchParams{
		ClientID:      req.clientID,
		Provider:      s.deps.Provider,
		Model:         s.deps.Model,
		TotalPages:    pages,
		EstimatedCost: estimate,
		PDFPaths:      req.pdfNames,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pdfs, _, err := readFiles(r.MultipartForm.File["pdfs"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := document.CountPages(pdfs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.Calculator == nil {
		writeError(w, http.StatusServiceUnavailable, "pricing is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Calculator.Estimate(s.deps.Provider, pages, s.deps.PagesPerChunk))
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	batches, err := s.deps.Store.ListBatches(r.Context(), store.BatchFilter{
		ClientID: q.Get("client_id"),
		Status:   model.BatchStatus(q.Get("status")),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batches == nil {
		batches = []model.ScoringBatch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// batchDetail is a batch with its persisted scores and failure audit.
type batchDetail struct {
	Batch    *model.ScoringBatch    `json:"batch"`
	Scores   []model.StoredScore    `json:"scores"`
	Failures []model.ScoringFailure `json:"failures"`
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "batchID")

	b, err := s.deps.Store.GetBatch(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	scores, err := s.deps.Store.ScoresByBatch(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failures, err := s.deps.Store.FailuresByBatch(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scores == nil {
		scores = []model.StoredScore{}
	}
	if failures == nil {
		failures = []model.ScoringFailure{}
	}
	writeJSON(w, http.StatusOK, batchDetail{Batch: b, Scores: scores, Failures: failures})
}

func (s *Server) handleLatestBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Store.LatestBatch(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "no batches for client")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.RecoverStaleBatches(r.Context(), store.StaleBatchAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recovered": n})
}

// handleMetrics reports batch health over ?hours= (default 24).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := monitoring.NewCollector(s.deps.Store, s.deps.Breakers).Collect(r.Context(), hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleProviders reports the circuit breaker state of each provider used
// since startup.
func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	statuses := []resilience.BreakerStatus{}
	if s.deps.Breakers != nil {
		statuses = append(statuses, s.deps.Breakers.Statuses()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	maxMB := s.cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	limit := int64(maxMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return eris.Wrap(err, "server: parse multipart form")
	}
	return nil
}

func (s *Server) parseScoreRequest(w http.ResponseWriter, r *http.Request) (*scoreRequest, error) {
	if err := s.parseMultipart(w, r); err != nil {
		return nil, err
	}
	form := r.MultipartForm

	pdfs, names, err := readFiles(form.File["pdfs"])
	if err != nil {
		return nil, err
	}
	if len(pdfs) == 0 {
		return nil, eris.New("server: at least one pdfs file is required")
	}

	req := &scoreRequest{
		pdfs:       pdfs,
		pdfNames:   names,
		clientID:   strings.TrimSpace(r.FormValue("client_id")),
		skipCached: r.FormValue("skip_cached") == "true",
	}

	if fhs := form.File["properties"]; len(fhs) > 0 {
		f, err := fhs[0].Open()
		if err != nil {
			return nil, eris.Wrap(err, "server: open properties")
		}
		defer f.Close() //nolint:errcheck
		req.records, err = dataset.Load(r.Context(), fhs[0].Filename, f)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

func readFiles(fhs []*multipart.FileHeader) ([][]byte, []string, error) {
	bufs := make([][]byte, 0, len(fhs))
	names := make([]string, 0, len(fhs))
	for _, fh := range fhs {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, eris.Wrapf(err, "server: open %s", fh.Filename)
		}
		b, err := io.ReadAll(f)
		f.Close() //nolint:errcheck
		if err != nil {
			return nil, nil, eris.Wrapf(err, "server: read %s", fh.Filename)
		}
		bufs = append(bufs, b)
		names = append(names, fh.Filename)
	}
	return bufs, names, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
