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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/wire"
)

// DialFunc opens a transport connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientConfig configures the follower side of a sync group.
type ClientConfig struct {
	Addr string

	// RefusedDelay is the wait after the server refused the connection,
	// ErrorDelay the wait after any other transport error.
	RefusedDelay time.Duration
	ErrorDelay   time.Duration

	// ResyncThreshold is how many consecutive empty or unparseable reads
	// are tolerated before the session is torn down.
	ResyncThreshold int

	// ReadTimeout bounds a single blocking read. Zero blocks indefinitely.
	ReadTimeout time.Duration

	ReadBufferSize int
	Codec          wire.Codec
	Clock          clockwork.Clock
	Dial           DialFunc
}

// DefaultClientConfig returns the reconnect behaviour used on the players.
func DefaultClientConfig(addr string) ClientConfig {
	return ClientConfig{
		Addr:            addr,
		RefusedDelay:    time.Second,
		ErrorDelay:      60 * time.Second,
		ResyncThreshold: 3,
		ReadTimeout:     30 * time.Second,
		ReadBufferSize:  4096,
		Codec:           wire.DefaultCodec(),
	}
}

// Client keeps a connection to the sync server alive and delivers decoded
// samples, in arrival order, on Messages.
type Client struct {
	cfg       ClientConfig
	out       chan wire.Message
	waitLog   rate.Sometimes
	connected atomic.Bool
}

// NewClient returns a client for cfg. Zero fields take their defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig(cfg.Addr)
	if cfg.RefusedDelay <= 0 {
		cfg.RefusedDelay = def.RefusedDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = def.ErrorDelay
	}
	if cfg.ResyncThreshold <= 0 {
		cfg.ResyncThreshold = def.ResyncThreshold
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.Codec.Framing() == "" {
		cfg.Codec = def.Codec
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	return &Client{
		cfg:     cfg,
		out:     make(chan wire.Message, 16),
		waitLog: rate.Sometimes{First: 1, Interval: 5 * time.Minute},
	}
}

// Messages is the stream of decoded samples. It is never closed.
func (c *Client) Messages() <-chan wire.Message { return c.out }

// Addr is the server address the client dials.
func (c *Client) Addr() string { return c.cfg.Addr }

// Connected reports whether a session with the server is open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Serve connects and reconnects until ctx is cancelled. There is no retry
// limit.
func (c *Client) Serve(ctx context.Context) error {
	for {
		conn, err := c.cfg.Dial(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := c.retryDelay(err)
			c.waitLog.Do(func() {
				logging.Warn().
					Err(err).
					Str("component", "sync-client").
					Str("server", c.cfg.Addr).
					Dur("retry_in", delay).
					Msg("sync server unreachable, playing unsynced")
			})
			metrics.RecordSyncReconnect("dial_error")
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		sctx := logging.ContextWithSessionID(ctx, logging.NewSessionID())
		logging.Ctx(sctx).Info().
			Str("component", "sync-client").
			Str("server", c.cfg.Addr).
			Msg("connected to sync server")
		c.connected.Store(true)
		metrics.SetSyncConnected(true)

		err = c.session(sctx, conn)
		_ = conn.Close()
		c.connected.Store(false)
		metrics.SetSyncConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := "read_error"
		if errors.Is(err, errResync) {
			reason = "resync"
		}
		metrics.RecordSyncReconnect(reason)
		logging.Ctx(sctx).Info().
			Err(err).
			Str("component", "sync-client").
			Str("reason", reason).
			Msg("sync session ended, reconnecting")
	}
}

// retryDelay picks the fixed wait for a dial failure.
func (c *Client) retryDelay(err error) time.Duration {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return c.cfg.RefusedDelay
	}
	return c.cfg.ErrorDelay
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.cfg.Clock.After(d):
		return nil
	}
}

// session reads from conn until a socket error, ctx cancellation or resync
// escalation.
func (c *Client) session(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := c.cfg.Codec.NewDecoder()
	buf := make([]byte, c.cfg.ReadBufferSize)
	attempts := 0

	for {
		if c.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}

		n, readErr := conn.Read(buf)
		if n == 0 && readErr == nil {
			attempts++
		}
		dec.Feed(buf[:n])

	drain:
		for {
			res := dec.Next()
			switch res.Status {
			case wire.StatusNotReady:
				break drain
			case wire.StatusParseError:
				attempts++
				metrics.RecordParseError()
				logging.Ctx(ctx).Debug().Err(res.Err).Str("component", "sync-client").Msg("dropping malformed frame")
			case wire.StatusOK:
				attempts = 0
				select {
				case c.out <- res.Message:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if readErr != nil {
			return fmt.Errorf("read from sync server: %w", readErr)
		}
		if attempts > c.cfg.ResyncThreshold {
			return fmt.Errorf("%w: %d consecutive bad reads", errResync, attempts)
		}
	}
}
