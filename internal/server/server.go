package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/output"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

type handler struct {
	logger         *zap.Logger
	service        *batch.Service
	maxRequestSize int64
	version        string
}

// Options tunes the HTTP handler.
type Options struct {
	MaxRequestSize int64
	Version        string
	AllowedOrigins []string
}

// NewHandler constructs the HTTP handler that serves the evaluation API.
func NewHandler(logger *zap.Logger, service *batch.Service, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxRequestSize := opts.MaxRequestSize
	if maxRequestSize <= 0 {
		maxRequestSize = constants.DefaultMaxRequestSizeBytes
	}

	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{logger: logger, service: service, maxRequestSize: maxRequestSize, version: trimmedVersion}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batch", h.handleBatch)
		r.Post("/population", h.handlePopulation)
		r.Get("/version", h.handleVersion)
		r.Get("/health", h.handleHealth)
	})

	return r
}

type batchResponse struct {
	model.PartialBatchResult
	Duration string `json:"duration"`
}

type populationRequest struct {
	Portfolios []model.Portfolio      `json:"portfolios"`
	Config     model.EvaluationConfig `json:"config"`
}

type populationResponse struct {
	model.PopulationEvaluationResult
	Names    []string `json:"names"`
	CSV      string   `json:"csv"`
	Duration string   `json:"duration"`
}

type healthResponse struct {
	Status        string      `json:"status"`
	Workers       workerStats `json:"workers"`
	CPUPercent    float64     `json:"cpuPercent"`
	MemoryPercent float64     `json:"memoryPercent"`
}

type workerStats struct {
	Size   int `json:"size"`
	Active int `json:"active"`
	Queued int `json:"queued"`
}

func (h *handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleBatch"
	start := time.Now()

	var req batch.Request
	if !h.decodeBody(w, r, &req, op) {
		return
	}

	result, err := h.service.RunBatch(r.Context(), req)
	if err != nil {
		h.respondEvaluationError(w, err, op)
		return
	}

	h.writeJSON(w, http.StatusOK, batchResponse{
		PartialBatchResult: result,
		Duration:           time.Since(start).String(),
	})
}

func (h *handler) handlePopulation(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePopulation"
	start := time.Now()

	var req populationRequest
	if !h.decodeBody(w, r, &req, op) {
		return
	}
	if req.Config.SimulationsPerGeneration == 0 {
		req.Config.SimulationsPerGeneration = constants.DefaultSimulationsPerGeneration
	}

	result, err := h.service.EvaluatePopulation(r.Context(), req.Portfolios, req.Config)
	if err != nil {
		h.respondEvaluationError(w, err, op)
		return
	}

	names := portfolioNames(req.Portfolios)
	h.writeJSON(w, http.StatusOK, populationResponse{
		PopulationEvaluationResult: result,
		Names:                      names,
		CSV:                        output.CsvString(names, result),
		Duration:                   time.Since(start).String(),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	pool := h.service.Pool()
	resp := healthResponse{
		Status: "ok",
		Workers: workerStats{
			Size:   pool.Size(),
			Active: pool.Active(),
			Queued: pool.Queued(),
		},
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.logger.Warn("failed to get CPU percentage",
			zap.String("op", "server.handleHealth"),
			zap.Error(err),
		)
	} else if len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.logger.Warn("failed to get memory statistics",
			zap.String("op", "server.handleHealth"),
			zap.Error(err),
		)
	} else {
		resp.MemoryPercent = memStat.UsedPercent
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a size-limited JSON body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, op string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxRequestSize), op)
			return false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return false
	}
	return true
}

func (h *handler) respondEvaluationError(w http.ResponseWriter, err error, op string) {
	status := http.StatusInternalServerError
	switch {
	case validation.IsRejection(err):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	h.respondErrorWithOp(w, status, err.Error(), op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("evaluation request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes payload before committing the status, so an unencodable
// result (NaN, ±Inf) still reaches the client as a 500.
func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		h.logger.Error("failed to encode JSON response",
			zap.String("op", "server.writeJSON"),
			zap.Int("status", status),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		body.Reset()
		msg := fmt.Errorf("%w: failed to encode response: %w", validation.ErrComputation, err).Error()
		_ = json.NewEncoder(&body).Encode(map[string]string{"error": msg})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body.Bytes()); err != nil {
		h.logger.Error("failed to write JSON response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
	}
}

func (h *handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			zap.String("op", "server.request"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func portfolioNames(portfolios []model.Portfolio) []string {
	names := make([]string, len(portfolios))
	for i, p := range portfolios {
		names[i] = p.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("portfolio-%d", i+1)
		}
	}
	return names
}
