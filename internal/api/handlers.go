// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/playlist"
	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/telemetry"
)

// SyncView is the read-only part of *playsync.Coordinator the handlers use.
type SyncView interface {
	Role() playsync.Role
	Sampler() *playsync.Sampler
	Server() *playsync.Server
	Client() *playsync.Client
}

// PlaybackView reports the latest telemetry reading.
type PlaybackView interface {
	Last() *telemetry.Status
}

// Handler serves /healthz and /status.
type Handler struct {
	Sync     SyncView
	Playback PlaybackView
	Playlist *playlist.Playlist
	Version  string

	// StaleAfter is how old the last telemetry reading may be before
	// /healthz fails. Zero disables the check.
	StaleAfter time.Duration

	Clock     clockwork.Clock
	startTime time.Time
}

// NewHandler returns a handler whose uptime starts now.
func NewHandler(h Handler) *Handler {
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	h.startTime = h.Clock.Now()
	return &h
}

// Metrics refreshes the uptime gauge before each scrape.
func (h *Handler) Metrics(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.UpdateUptime(h.startTime)
		next.ServeHTTP(w, r)
	}
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string  `json:"status"`
	Version string  `json:"version,omitempty"`
	Uptime  float64 `json:"uptime_seconds"`
	Reason  string  `json:"reason,omitempty"`
}

// Healthz reports "starting" before the first telemetry reading, "ok" while
// readings are fresh and "stale" with 503 once they stop.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.Clock.Now()
	resp := HealthResponse{
		Status:  "ok",
		Version: h.Version,
		Uptime:  now.Sub(h.startTime).Seconds(),
	}
	code := http.StatusOK

	var last *telemetry.Status
	if h.Playback != nil {
		last = h.Playback.Last()
	}
	switch {
	case h.Playlist.Count() == 0:
		resp.Status = "idle"
	case last == nil:
		resp.Status = "starting"
	case h.StaleAfter > 0 && now.Sub(last.Datetime) > h.StaleAfter:
		resp.Status = "stale"
		resp.Reason = "no playback telemetry since " + last.Datetime.Format(time.RFC3339)
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// SyncStatus describes this player's place in its sync group.
type SyncStatus struct {
	Role      playsync.Role `json:"role"`
	Peers     *int          `json:"peers,omitempty"`
	Server    string        `json:"server,omitempty"`
	Connected *bool         `json:"connected,omitempty"`
}

// PlayheadStatus is the sampler's last ground-truth reading.
type PlayheadStatus struct {
	TimeMS      int64 `json:"time_ms"`
	SampledAtMS int64 `json:"sampled_at_ms"`
}

// PlaylistStatus summarizes the loaded playlist.
type PlaylistStatus struct {
	ID    int `json:"id"`
	Count int `json:"count"`
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Version  string            `json:"version,omitempty"`
	Uptime   float64           `json:"uptime_seconds"`
	Sync     SyncStatus        `json:"sync"`
	Playhead *PlayheadStatus   `json:"playhead,omitempty"`
	Playlist PlaylistStatus    `json:"playlist"`
	Playback *telemetry.Status `json:"playback"`
}

// Status returns a JSON snapshot of sync and playback state.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version: h.Version,
		Uptime:  h.Clock.Since(h.startTime).Seconds(),
		Sync:    SyncStatus{Role: playsync.RoleNone},
	}
	if h.Playlist != nil {
		resp.Playlist = PlaylistStatus{ID: h.Playlist.ID, Count: h.Playlist.Count()}
	}

	if h.Sync != nil {
		resp.Sync.Role = h.Sync.Role()
		if srv := h.Sync.Server(); srv != nil {
			n := srv.Registry().Len()
			resp.Sync.Peers = &n
		}
		if c := h.Sync.Client(); c != nil {
			connected := c.Connected()
			resp.Sync.Server = c.Addr()
			resp.Sync.Connected = &connected
		}
		if s := h.Sync.Sampler(); s != nil {
			if last := s.Last(); last.SampledAt > 0 || last.TimeMS > 0 {
				resp.Playhead = &PlayheadStatus{
					TimeMS:      last.TimeMS,
					SampledAtMS: last.SampledAt.Milliseconds(),
				}
			}
		}
	}
	if h.Playback != nil {
		resp.Playback = h.Playback.Last()
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		logging.Error().Err(err).Str("component", "api").Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // HTTP response write errors are not recoverable
	w.Write(body)
}
