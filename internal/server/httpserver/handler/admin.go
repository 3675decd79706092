// Package handler provides HTTP request handlers for KeyMesh.
package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/service"
)

// backupAAD binds the ciphertext to its purpose and format version so
// a sealed backup cannot be replayed as something else.
const backupAAD = "keymesh-backup-v1"

// handleIssueCodes handles POST /admin/v1/codes.
func (h *Handler) handleIssueCodes(w http.ResponseWriter, r *http.Request) {
	var req IssueCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "KM-SYS-4000", "invalid request body", nil)
		return
	}

	resp, err := h.issueSvc.Issue(r.Context(), &service.IssueRequest{
		Kind:     req.LicenseKind,
		Count:    req.Count,
		IssuedBy: req.IssuedBy,
		MaxUses:  req.MaxUses,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.CodesIssuedTotal.WithLabelValues(string(resp.Kind)).Add(float64(len(resp.Codes)))

	codes := make([]IssuedCode, len(resp.Codes))
	for i, c := range resp.Codes {
		codes[i] = IssuedCode{
			Code:      c.Code,
			MaxUses:   c.MaxUses,
			CreatedAt: c.CreatedAtTime(),
			ExpiresAt: c.ExpiresAtTime(),
		}
	}

	h.writeJSON(w, r, http.StatusCreated, IssueCodesResponse{
		BatchID:      resp.BatchID,
		LicenseKind:  string(resp.Kind),
		DurationDays: resp.DurationDays,
		Count:        len(codes),
		Codes:        codes,
	})
}

// handleStats handles GET /admin/v1/stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.statsSvc.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	codes := make(map[string]KindStats, len(resp.Codes))
	for kind, stats := range resp.Codes {
		codes[string(kind)] = KindStats{
			Issued:   stats.Issued,
			Redeemed: stats.Redeemed,
		}
	}

	h.writeJSON(w, r, http.StatusOK, StatsResponse{
		Codes: codes,
		Devices: DeviceStats{
			Active: resp.Devices.Active,
			Total:  resp.Devices.Total,
		},
	})
}

// handleBackup handles POST /admin/v1/backups.
//
// The storage backup is buffered, sealed with the configured backup
// key, and streamed back as a binary attachment. The plaintext never
// touches disk.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeError(w, r, http.StatusConflict, "KM-SYS-4091",
			"backups are not supported by the configured storage", nil)
		return
	}
	if h.sealer == nil {
		h.writeError(w, r, http.StatusConflict, "KM-SYS-4092",
			"no backup key configured", nil)
		return
	}

	var buf bytes.Buffer
	version, err := h.backup.Backup(r.Context(), &buf)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	sealed, err := h.sealer.Seal(buf.Bytes(), []byte(backupAAD))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("backup created",
		"size_bytes", len(sealed),
		"version", version,
		"request_id", getRequestID(r))

	filename := fmt.Sprintf("keymesh-backup-%s.seal", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Backup-Version", fmt.Sprintf("%d", version))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sealed)
}
