// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"context"
	"fmt"

	"github.com/ACMILabs/media-player/internal/engine"
	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/wire"
)

// Action is what the corrector decided to do with one remote sample.
type Action int

const (
	ActionNone Action = iota
	ActionJump
	ActionSeek
)

func (a Action) String() string {
	switch a {
	case ActionJump:
		return "jump"
	case ActionSeek:
		return "seek"
	default:
		return "none"
	}
}

// Reasons reported with a Decision, also used as metric labels.
const (
	ReasonLocalUnknown     = "local_position_unknown"
	ReasonNotStarted       = "not_started"
	ReasonPositionMismatch = "position_mismatch"
	ReasonInSync           = "in_sync"
	ReasonUnknownLength    = "unknown_length"
	ReasonNearEnd          = "near_end"
	ReasonPastEnd          = "past_end"
	ReasonDrift            = "drift"
)

// Local is the follower's own playhead at the time a sample arrives.
type Local struct {
	Position int
	Known    bool
	TimeMS   int64
}

// Decision is the outcome of Decide.
type Decision struct {
	Action   Action
	Position int   // jump target
	TargetMS int64 // seek target
	DriftMS  int64
	Reason   string
}

// Decide applies the drift policy to one remote sample. It has no side
// effects.
func Decide(remote wire.Message, local Local, lengthMS int64, p Policy) Decision {
	if !local.Known {
		return Decision{Reason: ReasonLocalUnknown}
	}
	if remote.TimeMS == 0 || local.TimeMS == 0 {
		return Decision{Reason: ReasonNotStarted}
	}

	// Playlist alignment fires on any mismatch, whatever the drift.
	if remote.Position != wire.UnknownPosition && local.Position != remote.Position {
		return Decision{Action: ActionJump, Position: remote.Position, Reason: ReasonPositionMismatch}
	}

	drift := local.TimeMS - remote.TimeMS
	if drift < 0 {
		drift = -drift
	}
	if drift <= p.DriftThreshold.Milliseconds() {
		return Decision{DriftMS: drift, Reason: ReasonInSync}
	}

	target := remote.TimeMS + p.SyncLatency.Milliseconds()
	remaining := lengthMS - target
	switch {
	case lengthMS == 0:
		return Decision{DriftMS: drift, Reason: ReasonUnknownLength}
	case remaining < p.IgnoreThreshold.Milliseconds():
		return Decision{DriftMS: drift, TargetMS: target, Reason: ReasonNearEnd}
	case target > lengthMS:
		return Decision{DriftMS: drift, TargetMS: target, Reason: ReasonPastEnd}
	}
	return Decision{Action: ActionSeek, TargetMS: target, DriftMS: drift, Reason: ReasonDrift}
}

// Corrector reads the local playhead, decides and applies corrections through
// the shared engine handle.
type Corrector struct {
	eng     engine.Engine
	sampler *Sampler
	policy  Policy
}

// NewCorrector returns a corrector acting on eng.
func NewCorrector(eng engine.Engine, sampler *Sampler, policy Policy) *Corrector {
	return &Corrector{eng: eng, sampler: sampler, policy: policy}
}

// Correct handles one remote sample. If the engine cannot be read the sample
// is skipped and the read error returned.
func (c *Corrector) Correct(ctx context.Context, remote wire.Message) (Decision, error) {
	local, length, err := c.readLocal(ctx)
	if err != nil {
		metrics.RecordCorrection(ActionNone.String(), "engine_unavailable")
		return Decision{}, err
	}

	d := Decide(remote, local, length, c.policy)
	if d.DriftMS > 0 {
		metrics.ObserveDrift(d.DriftMS)
	}

	switch d.Action {
	case ActionJump:
		if err := c.eng.PlayItemAtIndex(ctx, d.Position); err != nil {
			return d, fmt.Errorf("jump to playlist index %d: %w", d.Position, err)
		}
		c.sampler.Reset()
		logging.Info().
			Str("component", "corrector").
			Int("local_position", local.Position).
			Int("remote_position", d.Position).
			Msg("playlist position mismatch, jumping")
	case ActionSeek:
		if err := c.eng.Seek(ctx, d.TargetMS); err != nil {
			return d, fmt.Errorf("seek to %dms: %w", d.TargetMS, err)
		}
		c.sampler.Reset()
		logging.Debug().
			Str("component", "corrector").
			Int64("drift_ms", d.DriftMS).
			Int64("target_ms", d.TargetMS).
			Msg("drift above threshold, seeking")
	}

	metrics.RecordCorrection(d.Action.String(), d.Reason)
	return d, nil
}

func (c *Corrector) readLocal(ctx context.Context) (Local, int64, error) {
	idx, ok, err := c.eng.PlaylistIndex(ctx)
	if err != nil {
		return Local{}, 0, fmt.Errorf("read playlist index: %w", err)
	}
	if !ok {
		return Local{}, 0, nil
	}
	t, err := c.sampler.Sample(ctx)
	if err != nil {
		return Local{}, 0, fmt.Errorf("read playhead: %w", err)
	}
	length, err := c.eng.Length(ctx)
	if err != nil {
		return Local{}, 0, fmt.Errorf("read length: %w", err)
	}
	return Local{Position: idx, Known: true, TimeMS: t}, length, nil
}
