// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"errors"
	"fmt"
	"time"
)

// Role selects which side of a sync group this process plays.
type Role string

const (
	RoleNone   Role = "none"
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// ErrPeerWrite wraps a failed write to one follower.
var ErrPeerWrite = errors.New("playsync: peer write failed")

// errResync ends a client session so it can be re-established.
var errResync = errors.New("playsync: too many bad reads, resyncing")

// Policy holds the drift correction thresholds. It is built once at startup
// and never mutated.
type Policy struct {
	DriftThreshold    time.Duration
	SyncLatency       time.Duration
	IgnoreThreshold   time.Duration
	BroadcastInterval time.Duration
}

// DefaultPolicy returns the thresholds used in the galleries.
func DefaultPolicy() Policy {
	return Policy{
		DriftThreshold:    40 * time.Millisecond,
		SyncLatency:       30 * time.Millisecond,
		IgnoreThreshold:   2000 * time.Millisecond,
		BroadcastInterval: 1000 * time.Millisecond,
	}
}

// Validate rejects negative thresholds and a non-positive broadcast interval.
func (p Policy) Validate() error {
	if p.DriftThreshold < 0 || p.SyncLatency < 0 || p.IgnoreThreshold < 0 {
		return fmt.Errorf("playsync: thresholds must not be negative: %+v", p)
	}
	if p.BroadcastInterval <= 0 {
		return fmt.Errorf("playsync: broadcast interval must be positive, got %s", p.BroadcastInterval)
	}
	return nil
}
