// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/validation"
)

// BlockRequest is the body of POST /blocked.
type BlockRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	Reason          string `json:"reason" validate:"max=512"`
	Priority        int    `json:"priority" validate:"gte=0"`
	DurationSeconds int64  `json:"duration_seconds" validate:"gte=0,lte=315360000"`
}

// RateLimitRequest is the body of POST /rate-limited.
type RateLimitRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	Reason          string `json:"reason" validate:"max=512"`
	Priority        int    `json:"priority" validate:"gte=0"`
	RatePerMinute   int    `json:"rate_per_minute" validate:"gt=0"`
	DurationSeconds int64  `json:"duration_seconds" validate:"gte=0,lte=315360000"`
}

// MitigationResult reports whether a manual request changed state.
type MitigationResult struct {
	Applied bool        `json:"applied"`
	Entry   interface{} `json:"entry"`
}

// ListBlocked returns blocked IPs, newest first.
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	entries, total := h.svc.ListBlocked(page)
	respondPage(w, entries, page, total)
}

// CreateBlock blocks an IP. A lower-priority request against an active block
// returns 200 with applied=false and the existing entry.
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondServiceError(w, verr.ToModelError())
		return
	}

	entry, applied, err := h.svc.Block(r.Context(), response.BlockRequest{
		IP:       req.IP,
		Reason:   manualReason(req.Reason, r),
		Priority: req.Priority,
		Duration: models.SecondsToDuration(req.DurationSeconds),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if applied {
		status = http.StatusCreated
		logging.CtxInfo(r.Context()).Str("ip", entry.IP).Msg("manual block applied")
	}
	respondData(w, status, MitigationResult{Applied: applied, Entry: entry})
}

// DeleteBlock unblocks an IP.
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if err := h.svc.Unblock(r.Context(), ip); err != nil {
		respondServiceError(w, err)
		return
	}
	logging.CtxInfo(r.Context()).Str("ip", ip).Msg("manual unblock")
	respondData(w, http.StatusOK, map[string]string{"ip": ip})
}

// ListRateLimited returns rate-limited IPs, newest first.
func (h *Handler) ListRateLimited(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	entries, total := h.svc.ListRateLimited(page)
	respondPage(w, entries, page, total)
}

// CreateRateLimit rate limits an IP.
func (h *Handler) CreateRateLimit(w http.ResponseWriter, r *http.Request) {
	var req RateLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondServiceError(w, verr.ToModelError())
		return
	}

	entry, applied, err := h.svc.RateLimit(r.Context(), response.RateLimitRequest{
		IP:            req.IP,
		Reason:        manualReason(req.Reason, r),
		Priority:      req.Priority,
		RatePerMinute: req.RatePerMinute,
		Duration:      models.SecondsToDuration(req.DurationSeconds),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if applied {
		status = http.StatusCreated
	}
	respondData(w, status, MitigationResult{Applied: applied, Entry: entry})
}

// DeleteRateLimit lifts a rate limit.
func (h *Handler) DeleteRateLimit(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if err := h.svc.RemoveRateLimit(r.Context(), ip); err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"ip": ip})
}

// manualReason defaults the reason to the authenticated caller. An empty
// result lets the executor apply its own default.
func manualReason(reason string, r *http.Request) string {
	if reason != "" {
		return reason
	}
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return "manual: " + claims.Username
	}
	return ""
}
