// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package services

import (
	"context"
	"errors"
	"fmt"
)

// StatusPublisher is satisfied by *telemetry.Publisher.
type StatusPublisher interface {
	Run(ctx context.Context) error
	Close() error
}

// TelemetryService supervises the playback status publisher and closes its
// broker connection when the service stops.
type TelemetryService struct {
	publisher StatusPublisher
	name      string
}

// NewTelemetryService wraps p.
func NewTelemetryService(p StatusPublisher) *TelemetryService {
	return &TelemetryService{publisher: p, name: "telemetry"}
}

// Serve implements suture.Service.
func (s *TelemetryService) Serve(ctx context.Context) error {
	err := s.publisher.Run(ctx)
	if ctx.Err() != nil {
		if cerr := s.publisher.Close(); cerr != nil {
			return fmt.Errorf("telemetry close: %w", cerr)
		}
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("publisher stopped unexpectedly")
	}
	return fmt.Errorf("telemetry publisher: %w", err)
}

func (s *TelemetryService) String() string {
	return s.name
}
