// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/supervisor"
)

// ErrEngineExited is returned when the media engine process goes away.
var ErrEngineExited = errors.New("media engine exited")

// EngineProcess is satisfied by *engine.MPV.
type EngineProcess interface {
	Exited() <-chan struct{}
	ExitErr() error
}

// EngineWatchdog escalates to a process restart when the engine exits. The
// engine handle is shared by every other component, so the supervisor
// cannot replace it in place.
type EngineWatchdog struct {
	proc      EngineProcess
	restarter supervisor.Restarter
	name      string
}

// NewEngineWatchdog watches proc and calls r when it exits.
func NewEngineWatchdog(proc EngineProcess, r supervisor.Restarter) *EngineWatchdog {
	return &EngineWatchdog{proc: proc, restarter: r, name: "engine-watchdog"}
}

// Serve implements suture.Service.
func (w *EngineWatchdog) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.proc.Exited():
	}

	// On shutdown the engine is closed deliberately, which also closes
	// Exited.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	exitErr := w.proc.ExitErr()
	metrics.RecordEngineError()
	logging.Error().
		Err(exitErr).
		Str("component", w.name).
		Msg("media engine exited")
	w.restarter.RestartSelf("media engine exited")

	if exitErr != nil {
		return fmt.Errorf("%w: %w", ErrEngineExited, exitErr)
	}
	return ErrEngineExited
}

func (w *EngineWatchdog) String() string {
	return w.name
}
