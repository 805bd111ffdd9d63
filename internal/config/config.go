// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package config loads the player configuration.
//
// Loading order (koanf v2), later layers win:
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/mediaplayer/config.yaml)
//  3. Environment variables, including the legacy names the players were
//     provisioned with (SYNC_IS_SERVER, SYNC_CLIENT_TO, AMQP_URL, ...)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("invalid configuration")
//	}
//	cc, err := cfg.Coordinator()
//	if err != nil {
//	    return err
//	}
//	coord, err := playsync.NewCoordinator(cc, eng)
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/wire"
)

// Config holds all player configuration.
type Config struct {
	Sync       SyncConfig       `koanf:"sync"`
	Engine     EngineConfig     `koanf:"engine"`
	Playlist   PlaylistConfig   `koanf:"playlist"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Device     DeviceConfig     `koanf:"device"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `koanf:"-"`
}

// SyncConfig selects the role of this player in its sync group.
//
// A player is the server when IsServer is set, a client when ClientTo names
// the server host, and unsynced otherwise. Both set is a configuration error.
type SyncConfig struct {
	IsServer bool   `koanf:"is_server"`
	ClientTo string `koanf:"client_to" validate:"omitempty,hostname_rfc1123|ip"`

	// BindHost is the listen address of the server role. Empty binds all
	// interfaces.
	BindHost string `koanf:"bind_host" validate:"omitempty,hostname_rfc1123|ip"`

	// Port is shared by every peer in the group.
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// Policy values are in milliseconds to match the provisioning variables.
	DriftThresholdMS    int `koanf:"drift_threshold_ms" validate:"min=1"`
	SyncLatencyMS       int `koanf:"sync_latency_ms" validate:"min=0"`
	IgnoreThresholdMS   int `koanf:"ignore_threshold_ms" validate:"min=0"`
	BroadcastIntervalMS int `koanf:"broadcast_interval_ms" validate:"min=1"`

	// RefreshInterval is how often the sampler is refreshed for display and
	// metrics.
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`

	// Framing is text or binary. Fields is 2 for (position, time) or 1 for
	// time only.
	Framing string `koanf:"framing" validate:"oneof=text binary"`
	Fields  int    `koanf:"fields" validate:"oneof=1 2"`

	RefusedDelay    time.Duration `koanf:"refused_delay" validate:"gt=0"`
	ErrorDelay      time.Duration `koanf:"error_delay" validate:"gt=0"`
	ResyncThreshold int           `koanf:"resync_threshold" validate:"min=1"`

	// ReadTimeout of zero blocks until the server closes the connection.
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// EngineConfig configures the media engine adapter.
type EngineConfig struct {
	// Kind is mpv or fake. fake plays nothing and is used on bench rigs.
	Kind       string   `koanf:"kind" validate:"oneof=mpv fake"`
	Binary     string   `koanf:"binary"`
	SocketPath string   `koanf:"socket_path"`
	Volume     int      `koanf:"volume" validate:"min=0,max=10"`
	HWDec      string   `koanf:"hwdec"`
	VO         string   `koanf:"vo"`
	ExtraArgs  []string `koanf:"extra_args"`

	StartTimeout time.Duration `koanf:"start_timeout" validate:"gt=0"`
	CallTimeout  time.Duration `koanf:"call_timeout" validate:"gt=0"`
}

// PlaylistConfig locates the catalog and the local resource store.
type PlaylistConfig struct {
	// APIEndpoint is the catalog base URL, e.g. https://xos.example/api.
	// Empty plays whatever the cache file holds.
	APIEndpoint   string `koanf:"api_endpoint" validate:"omitempty,url"`
	PlaylistID    int    `koanf:"playlist_id" validate:"min=0"`
	MediaPlayerID int    `koanf:"media_player_id" validate:"min=0"`

	ResourcesDir string `koanf:"resources_dir" validate:"required"`
	CacheFile    string `koanf:"cache_file" validate:"required"`

	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	Retries int           `koanf:"retries" validate:"min=0"`

	// Download fetches playlist files missing from ResourcesDir.
	// DownloadRetries is the number of attempts per file.
	Download        bool          `koanf:"download"`
	DownloadRetries int           `koanf:"download_retries" validate:"min=1"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gt=0"`

	// Prune removes files in ResourcesDir that the playlist no longer
	// references.
	Prune bool `koanf:"prune"`
}

// TelemetryConfig configures playback status reporting.
type TelemetryConfig struct {
	// BrokerURL is the NATS server status messages are published to. Empty
	// disables publishing; prometheus gauges are still updated.
	BrokerURL      string        `koanf:"broker_url" validate:"omitempty,broker_url"`
	SubjectPrefix  string        `koanf:"subject_prefix" validate:"required"`
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	StallThreshold int           `koanf:"stall_threshold" validate:"min=1"`
	PublishTimeout time.Duration `koanf:"publish_timeout" validate:"gt=0"`
}

// MetricsConfig configures the HTTP server exposing /metrics, /healthz and
// /status.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"min=1,max=65535"`

	// CORSOrigins may read /status from a browser. Empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int `koanf:"rate_limit" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file:line to every line.
	Caller bool `koanf:"caller"`
}

// SupervisorConfig mirrors suture's restart policy knobs.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DeviceConfig identifies the physical player in metrics. The fleet manager
// provisions both values; Name falls back to the hostname.
type DeviceConfig struct {
	UUID string `koanf:"uuid"`
	Name string `koanf:"name"`
}

// Role derives the sync role from IsServer and ClientTo.
func (c *SyncConfig) Role() playsync.Role {
	switch {
	case c.IsServer:
		return playsync.RoleServer
	case c.ClientTo != "":
		return playsync.RoleClient
	default:
		return playsync.RoleNone
	}
}

// Policy converts the millisecond settings into a playsync.Policy.
func (c *SyncConfig) Policy() playsync.Policy {
	return playsync.Policy{
		DriftThreshold:    time.Duration(c.DriftThresholdMS) * time.Millisecond,
		SyncLatency:       time.Duration(c.SyncLatencyMS) * time.Millisecond,
		IgnoreThreshold:   time.Duration(c.IgnoreThresholdMS) * time.Millisecond,
		BroadcastInterval: time.Duration(c.BroadcastIntervalMS) * time.Millisecond,
	}
}

// ListenAddr is the server role's bind address.
func (c *SyncConfig) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// ServerAddr is the address the client role dials.
func (c *SyncConfig) ServerAddr() string {
	if c.ClientTo == "" {
		return ""
	}
	return net.JoinHostPort(c.ClientTo, strconv.Itoa(c.Port))
}

// Codec builds the wire codec for Framing and Fields.
func (c *SyncConfig) Codec() (wire.Codec, error) {
	codec, err := wire.NewCodec(wire.Framing(c.Framing), c.Fields)
	if err != nil {
		return wire.Codec{}, fmt.Errorf("sync codec: %w", err)
	}
	return codec, nil
}

// Coordinator assembles the playsync configuration for this player.
func (c *Config) Coordinator() (playsync.CoordinatorConfig, error) {
	codec, err := c.Sync.Codec()
	if err != nil {
		return playsync.CoordinatorConfig{}, err
	}
	return playsync.CoordinatorConfig{
		Role:            c.Sync.Role(),
		Policy:          c.Sync.Policy(),
		RefreshInterval: c.Sync.RefreshInterval,
		Server: playsync.ServerConfig{
			Addr:         c.Sync.ListenAddr(),
			Codec:        codec,
			WriteTimeout: c.Sync.WriteTimeout,
		},
		Client: playsync.ClientConfig{
			Addr:            c.Sync.ServerAddr(),
			RefusedDelay:    c.Sync.RefusedDelay,
			ErrorDelay:      c.Sync.ErrorDelay,
			ResyncThreshold: c.Sync.ResyncThreshold,
			ReadTimeout:     c.Sync.ReadTimeout,
			Codec:           codec,
		},
	}, nil
}

// MetricsAddr is the listen address of the metrics server.
func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Metrics.Host, strconv.Itoa(c.Metrics.Port))
}
