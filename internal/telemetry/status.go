// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package telemetry reports playback status. Every interval the Publisher
// reads the engine, updates the prometheus playback gauges and, when a broker
// is configured, publishes a JSON Status message for the fleet dashboard.
package telemetry

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/ACMILabs/media-player/internal/engine"
)

// Status is one playback report. PlaybackPosition is in seconds to match the
// payload consumed by the existing dashboard; the other durations are in
// milliseconds.
type Status struct {
	Datetime         time.Time            `json:"datetime"`
	PlaylistID       int                  `json:"playlist_id"`
	MediaPlayerID    int                  `json:"media_player_id"`
	LabelID          *int                 `json:"label_id"`
	PlaybackPosition float64              `json:"playback_position"`
	PlaylistPosition int                  `json:"playlist_position"`
	Duration         int64                `json:"duration"`
	Volume           float64              `json:"volume"`
	Filename         string               `json:"filename,omitempty"`
	DroppedFrames    engine.DroppedFrames `json:"dropped_frames"`
}

// Marshal encodes s as JSON.
func (s *Status) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalStatus decodes a Status payload.
func UnmarshalStatus(data []byte) (Status, error) {
	var s Status
	err := json.Unmarshal(data, &s)
	return s, err
}
