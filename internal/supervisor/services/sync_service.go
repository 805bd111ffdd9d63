// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package services adapts the player's components to suture.Service.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/playsync"
)

// Coordinator is satisfied by *playsync.Coordinator.
type Coordinator interface {
	Role() playsync.Role
	Run(ctx context.Context) error
}

// SyncService supervises the sync coordinator. A coordinator that returns
// while ctx is live has lost a loop (for example the listener could not be
// bound) and is restarted by the sync layer.
type SyncService struct {
	coordinator Coordinator
	name        string
}

// NewSyncService wraps c.
func NewSyncService(c Coordinator) *SyncService {
	return &SyncService{coordinator: c, name: "sync-coordinator"}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	logging.Info().
		Str("component", s.name).
		Str("role", string(s.coordinator.Role())).
		Msg("sync coordinator starting")

	err := s.coordinator.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("coordinator stopped unexpectedly")
	}
	return fmt.Errorf("sync coordinator: %w", err)
}

func (s *SyncService) String() string {
	return s.name
}
