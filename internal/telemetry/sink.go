// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ACMILabs/media-player/internal/breaker"
	"github.com/ACMILabs/media-player/internal/metrics"
)

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("telemetry: sink is closed")

// Sink receives playback status reports.
type Sink interface {
	Publish(ctx context.Context, s Status) error
	Close() error
}

// MessageSink publishes status reports as watermill messages on
// <prefix>.<media_player_id>, behind a circuit breaker.
type MessageSink struct {
	publisher message.Publisher
	prefix    string
	cb        *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewMessageSink wraps any watermill publisher.
func NewMessageSink(pub message.Publisher, prefix string) *MessageSink {
	return &MessageSink{
		publisher: pub,
		prefix:    prefix,
		cb:        breaker.New[struct{}]("telemetry-publish", breaker.DefaultConfig()),
	}
}

// NATSConfig configures the NATS connection behind a MessageSink.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NewNATSSink connects a MessageSink to core NATS. Status reports are
// fire-and-forget, so JetStream is not used. The connection is retried in
// the background, so an unreachable broker does not fail startup.
func NewNATSSink(cfg NATSConfig, logger watermill.LoggerAdapter) (*MessageSink, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("mediaplayer"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	return NewMessageSink(pub, cfg.SubjectPrefix), nil
}

// Topic returns the subject reports for mediaPlayerID are published on.
func (s *MessageSink) Topic(mediaPlayerID int) string {
	return s.prefix + "." + strconv.Itoa(mediaPlayerID)
}

// Publish implements Sink.
func (s *MessageSink) Publish(ctx context.Context, st Status) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	payload, err := st.Marshal()
	if err != nil {
		metrics.RecordStatusPublish("failure")
		return fmt.Errorf("marshal status: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("media_player_id", strconv.Itoa(st.MediaPlayerID))
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.SetContext(ctx)

	_, err = s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.publisher.Publish(s.Topic(st.MediaPlayerID), msg)
	})
	switch {
	case err == nil:
		metrics.RecordStatusPublish("success")
	case breaker.IsRejected(err):
		metrics.RecordStatusPublish("rejected")
		return fmt.Errorf("publish status: %w", err)
	default:
		metrics.RecordStatusPublish("failure")
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// Close closes the underlying publisher. It is safe to call more than once.
func (s *MessageSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}
