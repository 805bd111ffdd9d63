// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Playback Metrics
	PlaybackDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duration",
			Help: "Duration of the current item in milliseconds",
		},
	)

	PlaybackPosition = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_position",
			Help: "Playback position in milliseconds",
		},
	)

	PlaylistPosition = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "position_playlist",
			Help: "Position in playlist",
		},
	)

	PlaylistLoops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "number_loops",
			Help: "Number of times the playlist wrapped around",
		},
	)

	PlayerVolume = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "player_volume",
			Help: "Media engine volume in percent",
		},
	)

	DroppedFrames = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dropped_frames",
			Help: "Frames dropped by the media engine",
		},
		[]string{"stage"}, // "decoder", "output"
	)

	// Info-style gauges, always 1, carrying identity in labels.
	DeviceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "device_info",
			Help: "Device identity",
		},
		[]string{"uuid", "name"},
	)

	CurrentItemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_item_info",
			Help: "Label and filename of the item currently playing",
		},
		[]string{"label_id", "filename"},
	)

	EngineErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_read_errors_total",
			Help: "Total failed reads from the media engine",
		},
	)

	// Sync Metrics
	SyncPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_peers",
			Help: "Followers currently connected to this sync server",
		},
	)

	SyncBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_broadcast_frames_total",
			Help: "Frames written to followers by result",
		},
		[]string{"result"}, // "delivered", "dropped"
	)

	SyncBroadcastsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_broadcast_ticks_skipped_total",
			Help: "Broadcast ticks skipped because no playable position was known",
		},
	)

	SyncConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_client_connected",
			Help: "1 while this follower holds a session with the sync server",
		},
	)

	SyncReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_client_reconnects_total",
			Help: "Follower reconnect attempts by cause",
		},
		[]string{"reason"}, // "dial_error", "read_error", "resync"
	)

	SyncParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_frame_parse_errors_total",
			Help: "Malformed frames received from the sync server",
		},
	)

	SyncDrift = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_drift_milliseconds",
			Help:    "Absolute playhead drift from the sync server",
			Buckets: []float64{5, 10, 20, 40, 80, 160, 320, 640, 1280, 5000},
		},
	)

	SyncCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_corrections_total",
			Help: "Drift corrector decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Telemetry Metrics
	StatusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_messages_published_total",
			Help: "Status messages sent to the broker by result",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)

	PlaylistFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_fetches_total",
			Help: "Playlist loads by source",
		},
		[]string{"source"}, // "catalog", "cache", "empty"
	)

	ResourceDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_downloads_total",
			Help: "Playlist resource downloads by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// PlaybackSnapshot is one telemetry reading applied to the playback gauges.
type PlaybackSnapshot struct {
	DurationMS       int64
	PositionMS       int64
	PlaylistPosition int
	Volume           float64
	DecoderDropped   int64
	OutputDropped    int64
	LabelID          string
	Filename         string
}

// RecordPlayback updates every playback gauge from s.
func RecordPlayback(s PlaybackSnapshot) {
	PlaybackDuration.Set(float64(s.DurationMS))
	PlaybackPosition.Set(float64(s.PositionMS))
	PlaylistPosition.Set(float64(s.PlaylistPosition))
	PlayerVolume.Set(s.Volume)
	DroppedFrames.WithLabelValues("decoder").Set(float64(s.DecoderDropped))
	DroppedFrames.WithLabelValues("output").Set(float64(s.OutputDropped))

	CurrentItemInfo.Reset()
	CurrentItemInfo.WithLabelValues(s.LabelID, s.Filename).Set(1)
}

// RecordPlaylistLoop counts one wrap of the playlist back to its first item.
func RecordPlaylistLoop() {
	PlaylistLoops.Inc()
}

// RecordEngineError counts a failed engine read
func RecordEngineError() {
	EngineErrors.Inc()
}

// SetDeviceInfo publishes the device identity.
func SetDeviceInfo(uuid, name string) {
	DeviceInfo.Reset()
	DeviceInfo.WithLabelValues(uuid, name).Set(1)
}

// SetSyncPeers sets the connected follower count
func SetSyncPeers(n int) {
	SyncPeers.Set(float64(n))
}

// RecordBroadcast records the outcome of one broadcast tick
func RecordBroadcast(delivered, dropped int) {
	SyncBroadcasts.WithLabelValues("delivered").Add(float64(delivered))
	SyncBroadcasts.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordBroadcastSkipped records a tick skipped for lack of a position
func RecordBroadcastSkipped() {
	SyncBroadcastsSkipped.Inc()
}

// SetSyncConnected flags whether the follower session is up
func SetSyncConnected(connected bool) {
	if connected {
		SyncConnected.Set(1)
	} else {
		SyncConnected.Set(0)
	}
}

// RecordSyncReconnect records a follower reconnect attempt
func RecordSyncReconnect(reason string) {
	SyncReconnects.WithLabelValues(reason).Inc()
}

// RecordParseError records one malformed frame
func RecordParseError() {
	SyncParseErrors.Inc()
}

// ObserveDrift records a measured drift in milliseconds
func ObserveDrift(ms int64) {
	SyncDrift.Observe(float64(ms))
}

// RecordCorrection records a corrector decision
func RecordCorrection(action, reason string) {
	SyncCorrections.WithLabelValues(action, reason).Inc()
}

// RecordCircuitBreakerTransition updates breaker state metrics
func RecordCircuitBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordStatusPublish records one status publish attempt
func RecordStatusPublish(result string) {
	StatusPublished.WithLabelValues(result).Inc()
}

// RecordPlaylistFetch records where a playlist load was served from
func RecordPlaylistFetch(source string) {
	PlaylistFetches.WithLabelValues(source).Inc()
}

// RecordResourceDownload records the outcome of fetching one missing media
// or subtitle file
func RecordResourceDownload(result string) {
	ResourceDownloads.WithLabelValues(result).Inc()
}

// SetAppInfo publishes build information.
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}

// UpdateUptime sets the uptime gauge from the process start time.
func UpdateUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}
