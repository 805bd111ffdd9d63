// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/ACMILabs/media-player/internal/playsync"
)

var (
	_ suture.Service = (*SyncService)(nil)
	_ suture.Service = (*TelemetryService)(nil)
	_ suture.Service = (*EngineWatchdog)(nil)
)

type mockCoordinator struct {
	err  error
	runs atomic.Int32
}

func (m *mockCoordinator) Role() playsync.Role { return playsync.RoleClient }

func (m *mockCoordinator) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSyncService(t *testing.T) {
	t.Run("returns context error on shutdown", func(t *testing.T) {
		c := &mockCoordinator{}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := NewSyncService(c).Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("wraps coordinator failure", func(t *testing.T) {
		bindErr := errors.New("listen tcp :10000: address already in use")
		err := NewSyncService(&mockCoordinator{err: bindErr}).Serve(context.Background())
		if !errors.Is(err, bindErr) {
			t.Errorf("Serve() = %v, want wrapped bind error", err)
		}
	})

	t.Run("nil return while running is a failure", func(t *testing.T) {
		c := &nilCoordinator{}
		if err := NewSyncService(c).Serve(context.Background()); err == nil {
			t.Error("expected an error")
		}
	})
}

type nilCoordinator struct{}

func (nilCoordinator) Role() playsync.Role       { return playsync.RoleNone }
func (nilCoordinator) Run(context.Context) error { return nil }

type mockPublisher struct {
	err    error
	closed atomic.Bool
}

func (m *mockPublisher) Run(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockPublisher) Close() error {
	m.closed.Store(true)
	return nil
}

func TestTelemetryService(t *testing.T) {
	p := &mockPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTelemetryService(p).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
	if !p.closed.Load() {
		t.Error("publisher not closed on shutdown")
	}

	failing := &mockPublisher{err: errors.New("broker gone")}
	if err := NewTelemetryService(failing).Serve(context.Background()); err == nil {
		t.Error("expected publisher error")
	}
	if failing.closed.Load() {
		t.Error("publisher should stay open for the restart")
	}
}

type fakeProcess struct {
	exited chan struct{}
	err    error
}

func (f *fakeProcess) Exited() <-chan struct{} { return f.exited }
func (f *fakeProcess) ExitErr() error          { return f.err }

type recordingRestarter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingRestarter) RestartSelf(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recordingRestarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func TestEngineWatchdog(t *testing.T) {
	t.Run("restarts process when engine exits", func(t *testing.T) {
		exitErr := errors.New("signal: killed")
		proc := &fakeProcess{exited: make(chan struct{}), err: exitErr}
		r := &recordingRestarter{}
		close(proc.exited)

		err := NewEngineWatchdog(proc, r).Serve(context.Background())
		if !errors.Is(err, ErrEngineExited) || !errors.Is(err, exitErr) {
			t.Errorf("Serve() = %v", err)
		}
		if r.count() != 1 {
			t.Errorf("RestartSelf called %d times, want 1", r.count())
		}
	})

	t.Run("quiet on shutdown", func(t *testing.T) {
		proc := &fakeProcess{exited: make(chan struct{})}
		r := &recordingRestarter{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := NewEngineWatchdog(proc, r).Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if r.count() != 0 {
			t.Error("RestartSelf must not be called on shutdown")
		}
	})

	t.Run("attached engine never fires", func(t *testing.T) {
		proc := &fakeProcess{}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := NewEngineWatchdog(proc, &recordingRestarter{}).Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v", err)
		}
	})
}
