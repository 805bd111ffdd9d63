// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

/*
Package metrics provides Prometheus metrics for a player node.

Every collector is registered with the default registry through promauto and
exported by the api package at /metrics.

# Available Metrics

Playback Metrics (refreshed by the telemetry publisher):
  - duration: Length of the current item in ms (gauge)
  - playback_position: Playhead in ms (gauge)
  - position_playlist: Current playlist index (gauge)
  - number_loops: Playlist wrap-arounds (counter)
  - player_volume: Engine volume in percent (gauge)
  - dropped_frames: Engine frame drops (gauge)
    Labels: stage (decoder, output)
  - device_info, current_item_info: Identity carried in labels, value 1

Sync Metrics:
  - sync_peers: Followers connected to this server (gauge)
  - sync_broadcast_frames_total: Frames written per result (counter)
    Labels: result (delivered, dropped)
  - sync_broadcast_ticks_skipped_total: Ticks with no playable position (counter)
  - sync_client_connected: 1 while a follower session is up (gauge)
  - sync_client_reconnects_total: Reconnects by cause (counter)
    Labels: reason (dial_error, read_error, resync)
  - sync_frame_parse_errors_total: Malformed frames (counter)
  - sync_drift_milliseconds: Measured drift (histogram)
  - sync_corrections_total: Corrector decisions (counter)
    Labels: action (none, jump, seek), reason

Telemetry Metrics:
  - status_messages_published_total: Status publishes (counter)
    Labels: result (success, failure, rejected)
  - playlist_fetches_total: Playlist loads (counter)
    Labels: source (catalog, cache, empty)
  - resource_downloads_total: Missing resource downloads (counter)
    Labels: result (success, failure)
  - engine_read_errors_total: Failed engine status reads (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
    Labels: name
  - circuit_breaker_state_transitions_total
    Labels: name, from_state, to_state

# Example PromQL

	# Followers that keep losing their session
	rate(sync_client_reconnects_total[10m]) > 0

	# p95 drift across a sync group
	histogram_quantile(0.95, sum by (le) (rate(sync_drift_milliseconds_bucket[5m])))

# Thread Safety

All recording functions are safe for concurrent use.
*/
package metrics
