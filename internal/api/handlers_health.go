// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/tripwire/internal/pipeline"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Stats   pipeline.Stats `json:"stats"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Health reports liveness and pipeline counters.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Stats:   h.svc.Stats(),
	})
}

// HealthLive is a bare liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"})
}
