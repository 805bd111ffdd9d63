// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package breaker builds gobreaker circuit breakers that report their state
// to prometheus and the log.
package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
)

// Config tunes a breaker.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32

	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration

	// MaxRequests is how many probes may run while half-open.
	MaxRequests uint32
}

// DefaultConfig suits one call every few seconds to a LAN service.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// New returns a breaker named name. Zero config fields take DefaultConfig
// values.
func New[T any](name string, cfg Config) *gobreaker.CircuitBreaker[T] {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(StateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("component", "breaker").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), StateValue(to))
		},
	})
}

// StateValue maps a state to the gauge value: 0 closed, 1 half-open, 2 open.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// IsRejected reports whether err came from the breaker itself rather than
// the protected call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
