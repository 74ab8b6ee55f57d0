// Package handler exposes credential verification over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/service"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

// Service is the verification use case consumed by the handler.
type Service interface {
	Verify(ctx context.Context, raw []byte, cb models.StepCallback) (*models.Result, error)
	Steps(ctx context.Context, raw []byte) (*service.StepsReport, error)
	Result(ctx context.Context, id uuid.UUID) (*models.Result, error)
	History(ctx context.Context, documentID string, limit int) ([]*models.Result, error)
}

// MaxBatchSize bounds POST /v1/verify/batch.
const MaxBatchSize = 50

// Handler handles verification endpoints.
type Handler struct {
	service          Service
	logger           *slog.Logger
	batchConcurrency int
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithBatchConcurrency bounds the documents verified in parallel by one batch request.
func WithBatchConcurrency(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.batchConcurrency = n
		}
	}
}

func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		service:          svc,
		logger:           slog.Default(),
		batchConcurrency: 4,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/verify", h.handleVerify)
	r.Post("/v1/verify/stream", h.handleVerifyStream)
	r.Post("/v1/verify/batch", h.handleVerifyBatch)
	r.Post("/v1/steps", h.handleSteps)
	r.Get("/v1/verifications", h.handleHistory)
	r.Get("/v1/verifications/{id}", h.handleGetResult)
}

// handleVerify verifies the credential in the request body and returns the
// stored result. A failed verification is a 200 with a failure verdict.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, raw, nil)
	if err != nil {
		h.logError(ctx, "verify", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// StreamEvent is one NDJSON line of POST /v1/verify/stream.
type StreamEvent struct {
	Type   string             `json:"type"`
	Step   *models.StepStatus `json:"step,omitempty"`
	Result *models.Result     `json:"result,omitempty"`
}

const (
	EventStep   = "step"
	EventResult = "result"
)

// handleVerifyStream writes each step status as it happens, then the result.
// Errors raised before the first step are plain JSON error responses.
func (h *Handler) handleVerifyStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stream := newNDJSONWriter(w)
	result, err := h.service.Verify(ctx, raw, func(s models.StepStatus) {
		stream.write(StreamEvent{Type: EventStep, Step: &s})
	})
	if err != nil {
		h.logError(ctx, "verify stream", err)
		if !stream.started {
			httputil.WriteError(w, err)
		}
		return
	}
	stream.write(StreamEvent{Type: EventResult, Result: result})
}

type ndjsonWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	return &ndjsonWriter{w: w, enc: json.NewEncoder(w)}
}

func (s *ndjsonWriter) write(v any) {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	_ = s.enc.Encode(v)
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// BatchRequest carries several credentials verified independently.
type BatchRequest struct {
	Credentials []json.RawMessage `json:"credentials"`
}

func (b *BatchRequest) Validate() error {
	switch {
	case len(b.Credentials) == 0:
		return dErrors.New(dErrors.CodeValidation, "credentials must not be empty")
	case len(b.Credentials) > MaxBatchSize:
		return dErrors.New(dErrors.CodeValidation, "too many credentials in one batch")
	}
	return nil
}

// BatchItem is the outcome of one credential of a batch; exactly one of
// Result and Error is set.
type BatchItem struct {
	Index            int            `json:"index"`
	Result           *models.Result `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	ErrorDescription string         `json:"error_description,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

// handleVerifyBatch verifies every credential with bounded concurrency. One
// credential failing to parse does not fail the others.
func (h *Handler) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	items := make([]BatchItem, len(req.Credentials))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.batchConcurrency)
	for i, raw := range req.Credentials {
		g.Go(func() error {
			items[i].Index = i
			result, err := h.service.Verify(gctx, raw, nil)
			if err != nil {
				items[i].Error = string(dErrors.CodeOf(err))
				var de *dErrors.Error
				if errors.As(err, &de) && de.Code != dErrors.CodeInternal {
					items[i].ErrorDescription = de.Message
				}
				return nil
			}
			items[i].Result = result
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		h.logError(ctx, "verify batch", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "batch verification was interrupted"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Results: items})
}

// handleSteps returns the verification map of a credential without running it.
func (h *Handler) handleSteps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Steps(ctx, raw)
	if err != nil {
		h.logError(ctx, "steps", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification id"))
		return
	}
	result, err := h.service.Result(ctx, id)
	if err != nil {
		h.logError(ctx, "get result", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HistoryResponse is the body of GET /v1/verifications.
type HistoryResponse struct {
	DocumentID string           `json:"documentId"`
	Results    []*models.Result `json:"results"`
}

// handleHistory lists the stored runs of one document:
// GET /v1/verifications?documentId=urn:uuid:...&limit=10
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := r.URL.Query().Get("documentId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	results, err := h.service.History(ctx, documentID, limit)
	if err != nil {
		h.logError(ctx, "history", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{DocumentID: documentID, Results: results})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "verification request failed",
		"op", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
