// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/setlist/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil mw uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to every route, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global to answer OPTIONS preflight

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom("health", RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Viewer-scoped data.
	r.Route("/api/v1/content", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(RequireViewer())

		r.With(chimiddleware.Compress(5, "application/json")).Get("/", router.handler.ContentListing)
		r.Get("/{id}/download", router.handler.ContentDownload)
	})

	r.Route("/api/v1/acks", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(RequireViewer())
		r.Post("/", router.handler.Acknowledge)
	})

	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom("ws", RateLimitWebSocket))
		r.Use(middleware.PrometheusMetrics)
		r.Use(RequireViewerOrQuery())
		r.Get("/", router.handler.WebSocket)
	})

	// Operations.
	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.With(router.chiMiddleware.RateLimitCustom("sync", RateLimitSync)).Post("/", router.handler.TriggerSync)
		r.With(router.chiMiddleware.RateLimit()).Get("/status", router.handler.SyncStatus)
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom("webhook", RateLimitWebhook))
		r.Use(middleware.PrometheusMetrics)
		r.Post("/storage", router.handler.StorageWebhook)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
