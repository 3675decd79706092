// Package handler provides HTTP request handlers for KeyMesh.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
	"github.com/yndnr/keymesh-go/pkg/crypto/seal"
)

// BackupSource streams a storage backup. The badger store implements
// this; the in-memory store does not.
type BackupSource interface {
	Backup(ctx context.Context, w io.Writer) (uint64, error)
}

// Config holds the Handler's dependencies.
type Config struct {
	Activation *service.ActivationService
	Issue      *service.IssueService
	Stats      *service.StatsService
	Metrics    *metric.Registry

	// Backup and Sealer enable the backup endpoint. Either being nil
	// makes backup requests fail with a descriptive error.
	Backup BackupSource
	Sealer *seal.Sealer

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to the
// appropriate operation.
type Handler struct {
	activationSvc *service.ActivationService
	issueSvc      *service.IssueService
	statsSvc      *service.StatsService
	metrics       *metric.Registry
	backup        BackupSource
	sealer        *seal.Sealer
	logger        *slog.Logger
	mux           *http.ServeMux
}

// New creates a new Handler.
func New(cfg *Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		activationSvc: cfg.Activation,
		issueSvc:      cfg.Issue,
		statsSvc:      cfg.Stats,
		metrics:       cfg.Metrics,
		backup:        cfg.Backup,
		sealer:        cfg.Sealer,
		logger:        log,
		mux:           http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Probe endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	h.mux.Handle("GET /metrics", h.metrics.Handler())

	// Device-facing API
	h.mux.HandleFunc("POST /api/v1/activate", h.handleActivate)
	h.mux.HandleFunc("POST /api/v1/verify", h.handleVerify)

	// Admin endpoints
	h.mux.HandleFunc("POST /admin/v1/codes", h.handleIssueCodes)
	h.mux.HandleFunc("GET /admin/v1/stats", h.handleStats)
	h.mux.HandleFunc("POST /admin/v1/backups", h.handleBackup)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// getRequestID extracts the request ID placed by the RequestID
// middleware, falling back to the raw header when the handler is
// mounted without the middleware (tests mostly).
func getRequestID(r *http.Request) string {
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err,
		"request_id", getRequestID(r))
	h.writeError(w, r, http.StatusInternalServerError, "KM-SYS-5000", "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "KM-ARG-"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "KM-SYS-5"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
