// Package handler provides HTTP request handlers for KeyMesh.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

// handleActivate handles POST /api/v1/activate.
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "KM-SYS-4000", "invalid request body", nil)
		return
	}

	resp, err := h.activationSvc.Activate(r.Context(), &service.ActivateRequest{
		DeviceID: req.DeviceID,
		Code:     req.Code,
	})
	if err != nil {
		h.countActivation(kindLabelFromCode(req.Code), err)
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.ActivationsTotal.WithLabelValues(string(resp.Kind), metric.ResultOK).Inc()

	h.writeJSON(w, r, http.StatusOK, ActivateResponse{
		LicenseKind:  string(resp.Kind),
		DurationDays: resp.DurationDays,
		ActivatedAt:  resp.Binding.ActivatedAtTime(),
		ExpiresAt:    time.UnixMilli(resp.ExpiresAt),
	})
}

// handleVerify handles POST /api/v1/verify.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "KM-SYS-4000", "invalid request body", nil)
		return
	}

	resp, err := h.activationSvc.Verify(r.Context(), &service.VerifyRequest{
		DeviceID: req.DeviceID,
	})
	if err != nil {
		h.metrics.VerificationsTotal.WithLabelValues(metric.ResultError).Inc()
		h.handleServiceError(w, r, err)
		return
	}

	if resp.Expired {
		h.metrics.LicensesExpired.Inc()
	}

	if !resp.Valid {
		h.metrics.VerificationsTotal.WithLabelValues(metric.ResultInvalid).Inc()
		h.writeJSON(w, r, http.StatusOK, VerifyResponse{Valid: false})
		return
	}

	h.metrics.VerificationsTotal.WithLabelValues(metric.ResultValid).Inc()

	expiresAt := time.UnixMilli(resp.ExpiresAt)
	h.writeJSON(w, r, http.StatusOK, VerifyResponse{
		Valid:         true,
		LicenseKind:   string(resp.Kind),
		ExpiresAt:     &expiresAt,
		DaysRemaining: resp.DaysRemaining,
		IsTrial:       resp.IsTrial,
	})
}

// countActivation records a failed activation attempt. Business
// rejections and infrastructure failures count separately.
func (h *Handler) countActivation(kind string, err error) {
	result := metric.ResultError
	switch {
	case domain.IsDomainError(err, domain.ErrCodeNotFound.Code),
		domain.IsDomainError(err, domain.ErrCodeExpired.Code),
		domain.IsDomainError(err, domain.ErrCodeExhausted.Code),
		domain.IsDomainError(err, domain.ErrDeviceAlreadyActive.Code),
		domain.IsDomainError(err, domain.ErrCodeMalformed.Code):
		result = metric.ResultRejected
	}
	h.metrics.ActivationsTotal.WithLabelValues(kind, result).Inc()
}

// kindLabelFromCode derives the metric kind label from a raw code
// string. Malformed codes collapse into a single bucket.
func kindLabelFromCode(codeStr string) string {
	kind, ok := domain.KindFromCode(codeStr)
	if !ok {
		return "unknown"
	}
	return string(kind)
}
