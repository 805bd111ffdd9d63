// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ACMILabs/media-player/internal/engine"
	"github.com/ACMILabs/media-player/internal/logging"
)

// CoordinatorConfig selects the role and configures every loop it runs.
type CoordinatorConfig struct {
	Role            Role
	Policy          Policy
	RefreshInterval time.Duration
	Server          ServerConfig
	Client          ClientConfig
	Clock           clockwork.Clock
}

// Coordinator owns the per-process sync state: one sampler, one server or
// client, one corrector, all sharing a serialized engine handle.
type Coordinator struct {
	cfg       CoordinatorConfig
	eng       engine.Engine
	sampler   *Sampler
	corrector *Corrector
	server    *Server
	client    *Client
}

// NewCoordinator builds the components for cfg.Role around eng. eng should
// already be serialized, e.g. with engine.NewLocked.
func NewCoordinator(cfg CoordinatorConfig, eng engine.Engine) (*Coordinator, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 50 * time.Millisecond
	}

	c := &Coordinator{cfg: cfg, eng: eng, sampler: NewSampler(eng)}

	switch cfg.Role {
	case RoleServer:
		sc := cfg.Server
		sc.Policy = cfg.Policy
		if sc.Clock == nil {
			sc.Clock = cfg.Clock
		}
		c.server = NewServer(sc, eng, c.sampler)
	case RoleClient:
		cc := cfg.Client
		if cc.Addr == "" {
			return nil, errors.New("playsync: client role needs a server address")
		}
		if cc.Clock == nil {
			cc.Clock = cfg.Clock
		}
		c.client = NewClient(cc)
		c.corrector = NewCorrector(eng, c.sampler, cfg.Policy)
	case RoleNone, "":
		c.cfg.Role = RoleNone
	default:
		return nil, fmt.Errorf("playsync: unknown role %q", cfg.Role)
	}
	return c, nil
}

// Role reports the configured role.
func (c *Coordinator) Role() Role { return c.cfg.Role }

// Sampler exposes the shared playhead estimator.
func (c *Coordinator) Sampler() *Sampler { return c.sampler }

// Server returns the sync server, nil unless the role is server.
func (c *Coordinator) Server() *Server { return c.server }

// Client returns the sync client, nil unless the role is client.
func (c *Coordinator) Client() *Client { return c.client }

// Run starts every loop for the role and blocks until ctx is cancelled or one
// loop fails, in which case the others are stopped and the error returned.
// Followers of a stopping server observe a closed socket and reconnect.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loops := map[string]func(context.Context) error{
		"refresh": func(ctx context.Context) error {
			return c.sampler.Refresh(ctx, c.cfg.Clock, c.cfg.RefreshInterval)
		},
	}
	switch c.cfg.Role {
	case RoleServer:
		loops["server"] = c.server.Serve
	case RoleClient:
		loops["client"] = c.client.Serve
		loops["correct"] = c.correctLoop
	}

	logging.Info().
		Str("component", "coordinator").
		Str("role", string(c.cfg.Role)).
		Dur("drift_threshold", c.cfg.Policy.DriftThreshold).
		Msg("sync coordinator starting")

	errCh := make(chan error, len(loops))
	var wg sync.WaitGroup
	for name, loop := range loops {
		wg.Add(1)
		go func(name string, loop func(context.Context) error) {
			defer wg.Done()
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s loop: %w", name, err)
				cancel()
			}
		}(name, loop)
	}
	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return err
	}
	return ctx.Err()
}

// correctLoop hands received samples to the corrector one at a time.
func (c *Coordinator) correctLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.client.Messages():
			if _, err := c.corrector.Correct(ctx, msg); err != nil {
				logging.Debug().
					Err(err).
					Str("component", "coordinator").
					Int("remote_position", msg.Position).
					Int64("remote_time_ms", msg.TimeMS).
					Msg("correction skipped")
			}
		}
	}
}
