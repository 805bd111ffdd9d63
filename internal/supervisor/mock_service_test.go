// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

var errSimulated = errors.New("simulated failure")

// mockService is a suture.Service whose first failures calls fail, then
// blocks until its context ends.
type mockService struct {
	name     string
	failures atomic.Int32
	starts   atomic.Int32
	stops    atomic.Int32
	started  chan struct{}
}

func newMockService(name string, failures int) *mockService {
	m := &mockService{name: name, started: make(chan struct{}, 1)}
	m.failures.Store(int32(failures))
	return m
}

func (m *mockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	defer m.stops.Add(1)

	if m.failures.Add(-1) >= 0 {
		return errSimulated
	}
	select {
	case m.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }
