// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package engine defines the media engine capability set consumed by the
// sync core and the telemetry publisher, plus the adapters that implement it.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned when the engine cannot report the requested
// value right now (no media loaded, engine still starting, IPC timeout).
var ErrUnavailable = errors.New("engine: unavailable")

// DroppedFrames holds the engine's frame drop counters.
type DroppedFrames struct {
	Decoder int64 `json:"decoder"`
	Output  int64 `json:"output"`
}

// Engine is the capability set of a local media engine. All times are in
// milliseconds except Clock, which is the engine's own monotonic clock.
type Engine interface {
	// RawTime is the playhead as last reported by the engine. Most engines
	// only refresh it every few hundred milliseconds.
	RawTime(ctx context.Context) (int64, error)
	// Length is the duration of the current item, 0 when unknown.
	Length(ctx context.Context) (int64, error)
	// PlaylistIndex returns the current playlist index. ok is false when
	// nothing playable is loaded.
	PlaylistIndex(ctx context.Context) (index int, ok bool, err error)
	Seek(ctx context.Context, ms int64) error
	PlayItemAtIndex(ctx context.Context, index int) error
	Clock() time.Duration

	Volume(ctx context.Context) (float64, error)
	DroppedFrames(ctx context.Context) (DroppedFrames, error)
	Close() error
}

// Locked serializes every call to the wrapped engine. Engines are not assumed
// to be safe for concurrent use, and the sampler, corrector and telemetry
// publisher all share one handle.
type Locked struct {
	mu sync.Mutex
	e  Engine
}

// NewLocked wraps e.
func NewLocked(e Engine) *Locked {
	return &Locked{e: e}
}

func (l *Locked) RawTime(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.RawTime(ctx)
}

func (l *Locked) Length(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Length(ctx)
}

func (l *Locked) PlaylistIndex(ctx context.Context) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.PlaylistIndex(ctx)
}

func (l *Locked) Seek(ctx context.Context, ms int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Seek(ctx, ms)
}

func (l *Locked) PlayItemAtIndex(ctx context.Context, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.PlayItemAtIndex(ctx, index)
}

func (l *Locked) Clock() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Clock()
}

func (l *Locked) Volume(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Volume(ctx)
}

func (l *Locked) DroppedFrames(ctx context.Context) (DroppedFrames, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.DroppedFrames(ctx)
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Close()
}
