// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/wire"
)

// PositionSource reports the local playlist index.
type PositionSource interface {
	PlaylistIndex(ctx context.Context) (int, bool, error)
}

// ServerConfig configures the authoritative side of a sync group.
type ServerConfig struct {
	Addr         string
	Policy       Policy
	Codec        wire.Codec
	WriteTimeout time.Duration
	Clock        clockwork.Clock
}

// Server accepts followers and broadcasts (position, time) to all of them on
// every tick.
type Server struct {
	cfg      ServerConfig
	pos      PositionSource
	sampler  *Sampler
	registry *Registry
	skipLog  rate.Sometimes

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewServer returns a server reading the playlist index from pos and the
// playhead from sampler.
func NewServer(cfg ServerConfig, pos PositionSource, sampler *Sampler) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Policy.BroadcastInterval <= 0 {
		cfg.Policy.BroadcastInterval = DefaultPolicy().BroadcastInterval
	}
	if cfg.Codec.Framing() == "" {
		cfg.Codec = wire.DefaultCodec()
	}
	return &Server{
		cfg:      cfg,
		pos:      pos,
		sampler:  sampler,
		registry: NewRegistry(),
		skipLog:  rate.Sometimes{Interval: time.Minute},
		ready:    make(chan struct{}),
	}
}

// Registry exposes the follower set.
func (s *Server) Registry() *Registry { return s.registry }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve listens on cfg.Addr and runs the accept and broadcast loops until ctx
// is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("sync server listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()

	logging.Info().
		Str("component", "sync-server").
		Str("addr", ln.Addr().String()).
		Dur("interval", s.cfg.Policy.BroadcastInterval).
		Msg("sync server listening")

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- s.acceptLoop(ln) }()

	ticker := s.cfg.Clock.NewTicker(s.cfg.Policy.BroadcastInterval)
	defer func() {
		ticker.Stop()
		_ = ln.Close()
		<-acceptErr
		s.registry.CloseAll()
	}()

	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Str("component", "sync-server").
				Str("reason", ctx.Err().Error()).
				Msg("sync server stopping")
			return ctx.Err()
		case err := <-acceptErr:
			// Put the value back for the deferred drain.
			acceptErr <- err
			return fmt.Errorf("sync server accept: %w", err)
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		s.registry.Add(conn)
	}
}

// Tick performs one broadcast. It returns false when the tick was skipped
// because the local position or playhead could not be read.
func (s *Server) Tick(ctx context.Context) bool {
	idx, ok, err := s.pos.PlaylistIndex(ctx)
	if err != nil || !ok {
		s.logSkip(err)
		return false
	}
	t, err := s.sampler.Sample(ctx)
	if err != nil {
		s.logSkip(err)
		return false
	}

	frame := s.cfg.Codec.Encode(wire.Message{Position: idx, TimeMS: t})
	var deadline time.Time
	if s.cfg.WriteTimeout > 0 {
		deadline = s.cfg.Clock.Now().Add(s.cfg.WriteTimeout)
	}
	delivered, dropped := s.registry.Broadcast(frame, deadline)
	metrics.RecordBroadcast(delivered, dropped)
	return true
}

func (s *Server) logSkip(err error) {
	metrics.RecordBroadcastSkipped()
	s.skipLog.Do(func() {
		ev := logging.Debug().Str("component", "sync-server")
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("no playable position, skipping broadcast")
	})
}
