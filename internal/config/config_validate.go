// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package config

import (
	"errors"
	"fmt"

	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/validation"
)

// Validate checks struct tag rules first, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateSync(); err != nil {
		return err
	}

	if err := c.validateTelemetry(); err != nil {
		return err
	}

	return c.validateMetrics()
}

func (c *Config) validateSync() error {
	if c.Sync.IsServer && c.Sync.ClientTo != "" {
		return errors.New("SYNC_IS_SERVER and SYNC_CLIENT_TO are mutually exclusive")
	}
	if _, err := c.Sync.Codec(); err != nil {
		return err
	}
	if err := c.Sync.Policy().Validate(); err != nil {
		return fmt.Errorf("sync policy: %w", err)
	}
	return nil
}

// validateTelemetry requires a player id when publishing, since it names
// the subject.
func (c *Config) validateTelemetry() error {
	if c.Telemetry.BrokerURL != "" && c.Playlist.MediaPlayerID == 0 {
		return errors.New("MEDIA_PLAYER_ID is required when a broker URL is set")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled || c.Sync.Role() != playsync.RoleServer {
		return nil
	}
	if c.Metrics.Port == c.Sync.Port {
		return fmt.Errorf("metrics port %d collides with the sync port", c.Metrics.Port)
	}
	return nil
}
