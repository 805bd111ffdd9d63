// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediaplayer/config.yaml",
	"/etc/mediaplayer/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the settings used on the gallery players.
func defaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Port:                10000,
			DriftThresholdMS:    40,
			SyncLatencyMS:       30,
			IgnoreThresholdMS:   2000,
			BroadcastIntervalMS: 1000,
			RefreshInterval:     50 * time.Millisecond,
			Framing:             "text",
			Fields:              2,
			RefusedDelay:        time.Second,
			ErrorDelay:          60 * time.Second,
			ResyncThreshold:     3,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        time.Second,
		},
		Engine: EngineConfig{
			Kind:         "mpv",
			Binary:       "mpv",
			SocketPath:   "/tmp/mediaplayer-mpv.sock",
			Volume:       10,
			HWDec:        "drm",
			VO:           "gpu-next",
			ExtraArgs:    []string{},
			StartTimeout: 10 * time.Second,
			CallTimeout:  2 * time.Second,
		},
		Playlist: PlaylistConfig{
			ResourcesDir: "/data/resources",
			CacheFile:    "/data/playlist.json",
			Timeout:      10 * time.Second,
			Retries:      3,
			Prune:        true,

			Download:        true,
			DownloadRetries: 3,
			DownloadTimeout: 30 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			SubjectPrefix:  "mediaplayer",
			Interval:       5 * time.Second,
			StallThreshold: 5,
			PublishTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Host:      "0.0.0.0",
			Port:      1007,
			RateLimit: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	if err := processSecondsFields(k); err != nil {
		return nil, fmt.Errorf("failed to process duration fields: %w", err)
	}

	warnings, err := processLegacyBroker(k)
	if err != nil {
		return nil, fmt.Errorf("failed to process broker url: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Warnings = warnings

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first default
// path that exists, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set from the environment.
var sliceConfigPaths = []string{
	"engine.extra_args",
	"metrics.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// secondsConfigPaths accept a bare integer meaning seconds, the unit the
// legacy provisioning variables use.
var secondsConfigPaths = []string{
	"telemetry.interval",
}

func processSecondsFields(k *koanf.Koanf) error {
	for _, path := range secondsConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strVal))
		if err != nil {
			continue
		}
		if err := k.Set(path, time.Duration(n)*time.Second); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// legacyBrokerSchemes are the RabbitMQ schemes older players were
// provisioned with in AMQP_URL. The NATS client cannot speak them.
var legacyBrokerSchemes = map[string]bool{"amqp": true, "amqps": true}

// processLegacyBroker clears a legacy AMQP broker URL so the player starts
// without status publishing instead of failing validation. The returned
// warnings are logged once logging is set up.
func processLegacyBroker(k *koanf.Koanf) ([]string, error) {
	raw := strings.TrimSpace(k.String("telemetry.broker_url"))
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil || !legacyBrokerSchemes[strings.ToLower(u.Scheme)] {
		return nil, nil
	}
	if err := k.Set("telemetry.broker_url", ""); err != nil {
		return nil, fmt.Errorf("failed to clear telemetry.broker_url: %w", err)
	}
	return []string{fmt.Sprintf("broker scheme %q is not supported, status publishing disabled (set BROKER_URL to a nats:// URL)", u.Scheme)}, nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// The unprefixed SYNC_*, XOS_*, AMQP_URL and MEDIA_PLAYER_ID names are the
// ones existing players are provisioned with.
var envMappings = map[string]string{
	// Sync
	"sync_is_server":          "sync.is_server",
	"sync_client_to":          "sync.client_to",
	"sync_bind_host":          "sync.bind_host",
	"sync_port":               "sync.port",
	"sync_drift_threshold":    "sync.drift_threshold_ms",
	"sync_latency":            "sync.sync_latency_ms",
	"sync_ignore_threshold":   "sync.ignore_threshold_ms",
	"sync_broadcast_interval": "sync.broadcast_interval_ms",
	"sync_refresh_interval":   "sync.refresh_interval",
	"sync_framing":            "sync.framing",
	"sync_fields":             "sync.fields",
	"sync_refused_delay":      "sync.refused_delay",
	"sync_error_delay":        "sync.error_delay",
	"sync_resync_threshold":   "sync.resync_threshold",
	"sync_read_timeout":       "sync.read_timeout",
	"sync_write_timeout":      "sync.write_timeout",

	// Engine
	"engine_kind":       "engine.kind",
	"mpv_binary":        "engine.binary",
	"mpv_socket":        "engine.socket_path",
	"mpv_hwdec":         "engine.hwdec",
	"mpv_vo":            "engine.vo",
	"mpv_extra_args":    "engine.extra_args",
	"mpv_start_timeout": "engine.start_timeout",
	"mpv_call_timeout":  "engine.call_timeout",
	"volume":            "engine.volume",

	// Playlist
	"xos_api_endpoint":    "playlist.api_endpoint",
	"playlist_id":         "playlist.playlist_id",
	"xos_playlist_id":     "playlist.playlist_id",
	"media_player_id":     "playlist.media_player_id",
	"xos_media_player_id": "playlist.media_player_id",
	"resources_dir":       "playlist.resources_dir",
	"playlist_cache_file": "playlist.cache_file",
	"playlist_timeout":    "playlist.timeout",
	"playlist_retries":    "playlist.retries",
	"download_resources":  "playlist.download",
	"download_retries":    "playlist.download_retries",
	"download_timeout":    "playlist.download_timeout",
	"playlist_prune":      "playlist.prune",

	// Telemetry
	"amqp_url":                     "telemetry.broker_url",
	"broker_url":                   "telemetry.broker_url",
	"nats_url":                     "telemetry.broker_url",
	"telemetry_subject_prefix":     "telemetry.subject_prefix",
	"time_between_playback_status": "telemetry.interval",
	"telemetry_stall_threshold":    "telemetry.stall_threshold",
	"telemetry_publish_timeout":    "telemetry.publish_timeout",

	// Metrics
	"metrics_enabled":      "metrics.enabled",
	"metrics_host":         "metrics.host",
	"metrics_port":         "metrics.port",
	"metrics_cors_origins": "metrics.cors_origins",
	"metrics_rate_limit":   "metrics.rate_limit",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Device identity
	"balena_device_uuid":         "device.uuid",
	"balena_device_name_at_init": "device.name",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped names return "" and are skipped so unrelated variables never
// leak into the configuration.
//
// Examples:
//   - SYNC_CLIENT_TO -> sync.client_to
//   - SYNC_DRIFT_THRESHOLD -> sync.drift_threshold_ms
//   - AMQP_URL -> telemetry.broker_url
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
