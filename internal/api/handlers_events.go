// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package api

import (
	"net/http"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/validation"
)

// SubmitEvent runs an event through the pipeline and returns its outcome.
// With a publisher configured the event is queued and 202 is returned.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event models.ThreatEvent
	if err := decodeJSON(w, r, &event); err != nil {
		respondServiceError(w, err)
		return
	}

	if h.publisher != nil {
		if verr := validation.ValidateStruct(&event); verr != nil {
			respondServiceError(w, verr.ToModelError())
			return
		}
		if err := h.publisher.PublishEvent(&event); err != nil {
			respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "event bus unavailable", err)
			return
		}
		respondData(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}

	outcome, err := h.svc.Submit(r.Context(), &event)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, outcome)
}

// ListAlerts returns alert history, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	alerts, err := h.svc.Alerts(r.Context(), page)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     alerts,
		Metadata: Metadata{Timestamp: nowUTC(), Offset: page.Offset, Limit: page.Limit},
	})
}

// ListExecutions returns execution history, newest first.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	execs, err := h.svc.Executions(r.Context(), page)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     execs,
		Metadata: Metadata{Timestamp: nowUTC(), Offset: page.Offset, Limit: page.Limit},
	})
}
