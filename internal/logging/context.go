// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const sessionIDKey contextKey = iota

// NewSessionID returns a short random id for one connection session.
func NewSessionID() string {
	return uuid.New().String()[:8]
}

// ContextWithSessionID tags ctx with a session id that Ctx adds to every event.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session id, or "" if none is set.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// Ctx returns the global logger with the context's session id attached.
//
//	logging.Ctx(ctx).Info().Msg("connected to sync server")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := SessionIDFromContext(ctx); id != "" {
		l = l.With().Str("session", id).Logger()
	}
	return &l
}
