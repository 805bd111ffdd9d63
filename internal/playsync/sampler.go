// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ACMILabs/media-player/internal/logging"
)

// ClockSource is the part of the engine the sampler reads.
type ClockSource interface {
	RawTime(ctx context.Context) (int64, error)
	Clock() time.Duration
}

// PlayheadSample is the last ground-truth reading captured by a Sampler.
type PlayheadSample struct {
	TimeMS    int64
	SampledAt time.Duration
}

// Sampler smooths the engine's coarse position updates. Between two distinct
// engine readings it extrapolates linearly using the engine's own clock.
//
// A raw reading of exactly 0 is always treated as ground truth, so a genuine
// 0 after playback started cannot be told apart from "not started yet".
type Sampler struct {
	src ClockSource

	mu   sync.Mutex
	last PlayheadSample
}

// NewSampler returns a sampler over src.
func NewSampler(src ClockSource) *Sampler {
	return &Sampler{src: src}
}

// Sample returns the current playhead estimate in milliseconds. Concurrent
// callers are serialized so the base only moves forward.
func (s *Sampler) Sample(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.src.RawTime(ctx)
	if err != nil {
		return 0, err
	}
	now := s.src.Clock()

	if raw == s.last.TimeMS && s.last.TimeMS != 0 {
		return raw + (now - s.last.SampledAt).Milliseconds(), nil
	}
	s.last = PlayheadSample{TimeMS: raw, SampledAt: now}
	return raw, nil
}

// Last returns the most recent ground-truth capture.
func (s *Sampler) Last() PlayheadSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset drops the interpolation base so the next Sample is taken as ground
// truth. Called after every corrective seek or jump.
func (s *Sampler) Reset() {
	s.mu.Lock()
	s.last = PlayheadSample{}
	s.mu.Unlock()
}

// Refresh samples every interval until ctx is done, keeping the
// interpolation base warm when nothing else polls.
func (s *Sampler) Refresh(ctx context.Context, clock clockwork.Clock, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	logErr := rate.Sometimes{Interval: 30 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := s.Sample(ctx); err != nil {
				logErr.Do(func() {
					logging.Debug().Err(err).Str("component", "sampler").Msg("engine position unavailable")
				})
			}
		}
	}
}
