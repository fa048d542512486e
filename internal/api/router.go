// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cohortmart/internal/middleware"
)

// NewRouter builds the HTTP routes of h.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(adapt(middleware.RequestID))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware(h.config.Server))
	r.Use(requestLogger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(adapt(middleware.PrometheusMetrics))
		r.Use(securityHeaders)

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(h.config.Server))
			r.Use(adapt(middleware.Compression))

			r.Get("/beatmaps/{id}/cohort", h.Cohort)
			r.Get("/beatmaps/{id}/recommendations", h.Recommendations)
		})
	})

	return r
}

// NewServer wraps the router in an http.Server configured from the server
// section of the handler config.
func NewServer(h *Handler) *http.Server {
	cfg := h.config.Server
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewRouter(h),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
