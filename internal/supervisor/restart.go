// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package supervisor

import (
	"context"
	"sync"

	"github.com/ACMILabs/media-player/internal/logging"
)

// Restarter restarts the whole player process. It is the escalation path for
// failures no supervised restart can fix, such as a wedged media engine.
type Restarter interface {
	RestartSelf(reason string)
}

// ProcessRestarter cancels the root context so the tree shuts down cleanly,
// and records that the exit is a restart request. The caller then exits
// non-zero and the host's service manager starts a fresh process.
type ProcessRestarter struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string
}

// NewProcessRestarter returns a restarter that cancels cancel on request.
func NewProcessRestarter(cancel context.CancelFunc) *ProcessRestarter {
	return &ProcessRestarter{cancel: cancel}
}

// RestartSelf implements Restarter. Only the first reason is kept.
func (r *ProcessRestarter) RestartSelf(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	r.mu.Lock()
	first := r.reason == ""
	if first {
		r.reason = reason
	}
	r.mu.Unlock()

	if !first {
		return
	}
	logging.Error().
		Str("component", "supervisor").
		Str("reason", reason).
		Msg("restarting player process")
	r.cancel()
}

// Requested reports whether RestartSelf was called, and why.
func (r *ProcessRestarter) Requested() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason, r.reason != ""
}
