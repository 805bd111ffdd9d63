// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package api serves the player's local HTTP surface: prometheus metrics,
// a health probe for the host's service manager, and a JSON status snapshot
// for on-site diagnosis.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router for h.
//
//	GET /metrics  prometheus exposition
//	GET /healthz  200 while playback telemetry is fresh, 503 when stale
//	GET /status   JSON snapshot of sync role, playhead and playback
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogging())
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg))

	r.Get("/metrics", h.Metrics(promhttp.Handler()))

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(cfg))
		r.Use(SecurityHeaders())
		r.Get("/healthz", h.Healthz)
		r.Get("/status", h.Status)
	})

	return r
}
