// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ACMILabs/media-player/internal/engine"
	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/playlist"
	"github.com/ACMILabs/media-player/internal/supervisor"
)

// ErrEngineStalled is returned by Run when the engine failed StallThreshold
// consecutive readings.
var ErrEngineStalled = errors.New("telemetry: media engine stalled")

// Engine is the part of engine.Engine the publisher reads.
type Engine interface {
	RawTime(ctx context.Context) (int64, error)
	Length(ctx context.Context) (int64, error)
	PlaylistIndex(ctx context.Context) (int, bool, error)
	Volume(ctx context.Context) (float64, error)
	DroppedFrames(ctx context.Context) (engine.DroppedFrames, error)
}

// Config configures a Publisher.
type Config struct {
	MediaPlayerID  int
	Interval       time.Duration
	StallThreshold int
	PublishTimeout time.Duration
	Clock          clockwork.Clock
}

// Publisher samples the engine on a fixed interval.
type Publisher struct {
	cfg       Config
	engine    Engine
	playlist  *playlist.Playlist
	sink      Sink
	restarter supervisor.Restarter

	failures  int
	lastIndex int
	haveIndex bool
	errLog    rate.Sometimes

	mu   sync.Mutex
	last *Status
}

// NewPublisher returns a publisher. sink and restarter may be nil: without a
// sink only the prometheus gauges are updated, and without a restarter a
// stall only ends Run.
func NewPublisher(cfg Config, eng Engine, pl *playlist.Playlist, sink Sink, restarter supervisor.Restarter) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 5
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if pl == nil {
		pl = &playlist.Playlist{}
	}
	return &Publisher{
		cfg:       cfg,
		engine:    eng,
		playlist:  pl,
		sink:      sink,
		restarter: restarter,
		errLog:    rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// Run reports status every interval until ctx is done or the engine stalls.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := p.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick takes one reading. It returns ErrEngineStalled once the failure
// threshold is reached, after asking the restarter for a process restart.
func (p *Publisher) Tick(ctx context.Context) error {
	if p.playlist.Count() == 0 {
		// An idle engine has nothing to report and must not count as stalled.
		return nil
	}

	st, err := p.read(ctx)
	if err != nil {
		p.failures++
		p.errLog.Do(func() {
			logging.Warn().
				Err(err).
				Str("component", "telemetry").
				Int("consecutive_failures", p.failures).
				Msg("engine status unavailable")
		})
		metrics.RecordEngineError()
		if p.failures >= p.cfg.StallThreshold {
			reason := fmt.Sprintf("engine failed %d consecutive status reads", p.failures)
			if p.restarter != nil {
				p.restarter.RestartSelf(reason)
			}
			return fmt.Errorf("%w: %v", ErrEngineStalled, err)
		}
		return nil
	}
	p.failures = 0

	p.record(st)

	if p.sink != nil {
		pctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		err := p.sink.Publish(pctx, st)
		cancel()
		if err != nil {
			p.errLog.Do(func() {
				logging.Warn().Err(err).Str("component", "telemetry").Msg("status publish failed")
			})
		}
	}
	return nil
}

// Last returns the most recent status, or nil before the first reading.
func (p *Publisher) Last() *Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	s := *p.last
	return &s
}

// Close closes the sink.
func (p *Publisher) Close() error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Close()
}

func (p *Publisher) read(ctx context.Context) (Status, error) {
	pos, err := p.engine.RawTime(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("position: %w", err)
	}
	length, err := p.engine.Length(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("duration: %w", err)
	}
	index, ok, err := p.engine.PlaylistIndex(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("playlist index: %w", err)
	}
	if !ok {
		return Status{}, fmt.Errorf("playlist index: %w", engine.ErrUnavailable)
	}

	// Volume and frame drops are informational; a failure leaves them zero.
	volume, _ := p.engine.Volume(ctx)
	dropped, _ := p.engine.DroppedFrames(ctx)

	st := Status{
		Datetime:         p.cfg.Clock.Now(),
		PlaylistID:       p.playlist.ID,
		MediaPlayerID:    p.cfg.MediaPlayerID,
		PlaybackPosition: float64(pos) / 1000,
		PlaylistPosition: index,
		Duration:         length,
		Volume:           volume,
		DroppedFrames:    dropped,
	}
	if id, ok := p.playlist.LabelAt(index); ok {
		st.LabelID = &id
	}
	if e, ok := p.playlist.Entry(index); ok {
		st.Filename = e.Filename()
	}
	return st, nil
}

func (p *Publisher) record(st Status) {
	label := ""
	if st.LabelID != nil {
		label = strconv.Itoa(*st.LabelID)
	}
	metrics.RecordPlayback(metrics.PlaybackSnapshot{
		DurationMS:       st.Duration,
		PositionMS:       int64(st.PlaybackPosition * 1000),
		PlaylistPosition: st.PlaylistPosition,
		Volume:           st.Volume,
		DecoderDropped:   st.DroppedFrames.Decoder,
		OutputDropped:    st.DroppedFrames.Output,
		LabelID:          label,
		Filename:         st.Filename,
	})

	if p.haveIndex && st.PlaylistPosition == 0 && p.lastIndex != 0 {
		metrics.RecordPlaylistLoop()
		logging.Debug().Str("component", "telemetry").Msg("playlist looped")
	}
	p.lastIndex, p.haveIndex = st.PlaylistPosition, true

	p.mu.Lock()
	p.last = &st
	p.mu.Unlock()
}
