// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tripwire/internal/auth"
)

// Router owns the HTTP route table.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	jwt           *auth.JWTManager
}

// NewRouter creates a Router. jwt may be nil to leave mutating routes open.
func NewRouter(handler *Handler, mw *ChiMiddleware, jwt *auth.JWTManager) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, jwt: jwt}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitIngest))
			r.Use(RequireWriter(router.jwt))
			r.Post("/events", router.handler.SubmitEvent)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Get("/rules", router.handler.ListRules)
			r.Get("/rules/{id}", router.handler.GetRule)
			r.Get("/blocked", router.handler.ListBlocked)
			r.Get("/rate-limited", router.handler.ListRateLimited)
			r.Get("/alerts", router.handler.ListAlerts)
			r.Get("/executions", router.handler.ListExecutions)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWrite))
			r.Use(RequireWriter(router.jwt))

			r.Post("/rules", router.handler.CreateRule)
			r.Put("/rules/{id}", router.handler.UpdateRule)
			r.Delete("/rules/{id}", router.handler.DeleteRule)
			r.Post("/rules/{id}/enable", router.handler.EnableRule)
			r.Post("/rules/{id}/disable", router.handler.DisableRule)

			r.Post("/blocked", router.handler.CreateBlock)
			r.Delete("/blocked/{ip}", router.handler.DeleteBlock)
			r.Post("/rate-limited", router.handler.CreateRateLimit)
			r.Delete("/rate-limited/{ip}", router.handler.DeleteRateLimit)
		})
	})

	return r
}
