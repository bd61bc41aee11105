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
	"github.com/tomtom215/tripwire/internal/rules"
)

// ListRules returns every rule in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	all := h.svc.Rules()
	page := pageFromRequest(r)
	respondPage(w, models.Paginate(all, page), page, len(all))
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, rule)
}

// CreateRule adds a rule. The stored rule is returned.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		respondServiceError(w, err)
		return
	}
	created, err := h.svc.AddRule(r.Context(), &rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logging.CtxInfo(r.Context()).Str("rule_id", created.ID).Msg("rule created")
	respondData(w, http.StatusCreated, created)
}

// UpdateRule replaces a rule. The path id wins over any id in the body.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		respondServiceError(w, err)
		return
	}
	rule.ID = chi.URLParam(r, "id")
	updated, err := h.svc.UpdateRule(r.Context(), &rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logging.CtxInfo(r.Context()).Str("rule_id", updated.ID).Msg("rule updated")
	respondData(w, http.StatusOK, updated)
}

// DeleteRule removes a rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteRule(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	logging.CtxInfo(r.Context()).Str("rule_id", id).Msg("rule deleted")
	respondData(w, http.StatusOK, map[string]string{"id": id})
}

// EnableRule enables a rule.
func (h *Handler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableRule disables a rule. Executions already scheduled still run.
func (h *Handler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rule, err := h.svc.SetRuleEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, rule)
}
