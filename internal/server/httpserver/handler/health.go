// Package handler provides HTTP request handlers for KeyMesh.
package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready.
//
// Readiness checks storage reachability with a cheap stats read; a
// store that cannot answer is not ready to serve activations.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.statsSvc.Stats(r.Context()); err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "KM-SYS-5001",
			"storage not ready", nil)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
