// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/ACMILabs/media-player/internal/api"
	"github.com/ACMILabs/media-player/internal/config"
	"github.com/ACMILabs/media-player/internal/engine"
	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
	"github.com/ACMILabs/media-player/internal/playlist"
	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/supervisor"
	"github.com/ACMILabs/media-player/internal/supervisor/services"
	"github.com/ACMILabs/media-player/internal/telemetry"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the player (default command)",
		Action: runPlayer,
	}
}

//nolint:gocyclo // Sequential setup of every player component
func runPlayer(ctx context.Context, _ *cli.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	role := cfg.Sync.Role()
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Fields: map[string]string{
			"media_player_id": strconv.Itoa(cfg.Playlist.MediaPlayerID),
			"role":            string(role),
		},
	})
	logging.Info().
		Str("version", version).
		Str("engine", cfg.Engine.Kind).
		Str("sync_server", cfg.Sync.ServerAddr()).
		Msg("Starting media player")
	for _, w := range cfg.Warnings {
		logging.Warn().Str("component", "config").Msg(w)
	}

	metrics.SetAppInfo(version, runtime.Version())
	deviceName := cfg.Device.Name
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}
	metrics.SetDeviceInfo(cfg.Device.UUID, deviceName)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	restarter := supervisor.NewProcessRestarter(cancel)

	// === PLAYLIST ===

	provider := playlist.NewProvider(playlist.Config{
		APIEndpoint:   cfg.Playlist.APIEndpoint,
		PlaylistID:    cfg.Playlist.PlaylistID,
		MediaPlayerID: cfg.Playlist.MediaPlayerID,
		ResourcesDir:  cfg.Playlist.ResourcesDir,
		CacheFile:     cfg.Playlist.CacheFile,
		Timeout:       cfg.Playlist.Timeout,
		Retries:       cfg.Playlist.Retries,

		Download:        cfg.Playlist.Download,
		DownloadRetries: cfg.Playlist.DownloadRetries,
		DownloadTimeout: cfg.Playlist.DownloadTimeout,
	})
	pl, source, err := provider.Load(ctx)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}
	if cfg.Playlist.Prune && source == playlist.SourceCatalog {
		removed, err := playlist.Prune(cfg.Playlist.ResourcesDir, pl, cfg.Playlist.CacheFile)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to prune resources")
		} else if len(removed) > 0 {
			logging.Info().Int("count", len(removed)).Msg("Pruned unused resources")
		}
	}

	// === ENGINE ===

	var (
		raw  engine.Engine
		proc services.EngineProcess
	)
	switch cfg.Engine.Kind {
	case "fake":
		raw = engine.NewFake()
		logging.Warn().Msg("Using fake engine, nothing will be displayed")
	default:
		mpv, err := engine.StartMPV(ctx, engine.MPVConfig{
			Binary:       cfg.Engine.Binary,
			SocketPath:   cfg.Engine.SocketPath,
			ExtraArgs:    cfg.Engine.ExtraArgs,
			Playlist:     pl.Paths(),
			Subtitles:    pl.SubtitlePaths(),
			Volume:       cfg.Engine.Volume,
			HWDec:        cfg.Engine.HWDec,
			VO:           cfg.Engine.VO,
			StartTimeout: cfg.Engine.StartTimeout,
			CallTimeout:  cfg.Engine.CallTimeout,
		})
		if err != nil {
			return fmt.Errorf("start media engine: %w", err)
		}
		raw, proc = mpv, mpv
	}
	eng := engine.NewLocked(raw)
	defer func() {
		if err := eng.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing media engine")
		}
	}()

	// === SYNC ===

	coordCfg, err := cfg.Coordinator()
	if err != nil {
		return err
	}
	coord, err := playsync.NewCoordinator(coordCfg, eng)
	if err != nil {
		return fmt.Errorf("create sync coordinator: %w", err)
	}

	// === TELEMETRY ===

	var sink telemetry.Sink
	if cfg.Telemetry.BrokerURL != "" {
		natsSink, err := telemetry.NewNATSSink(telemetry.NATSConfig{
			URL:           cfg.Telemetry.BrokerURL,
			SubjectPrefix: cfg.Telemetry.SubjectPrefix,
		}, watermill.NewSlogLogger(logging.NewSlogLogger("telemetry")))
		if err != nil {
			return fmt.Errorf("create status sink: %w", err)
		}
		sink = natsSink
		logging.Info().Str("subject", natsSink.Topic(cfg.Playlist.MediaPlayerID)).Msg("Publishing playback status")
	} else {
		logging.Info().Msg("No broker configured, playback status goes to metrics only")
	}
	publisher := telemetry.NewPublisher(telemetry.Config{
		MediaPlayerID:  cfg.Playlist.MediaPlayerID,
		Interval:       cfg.Telemetry.Interval,
		StallThreshold: cfg.Telemetry.StallThreshold,
		PublishTimeout: cfg.Telemetry.PublishTimeout,
	}, eng, pl, sink, restarter)

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	if proc != nil {
		tree.AddEngineService(services.NewEngineWatchdog(proc, restarter))
	}
	tree.AddSyncService(services.NewSyncService(coord))
	tree.AddTelemetryService(services.NewTelemetryService(publisher))

	if cfg.Metrics.Enabled {
		handler := api.NewHandler(api.Handler{
			Sync:       coord,
			Playback:   publisher,
			Playlist:   pl,
			Version:    version,
			StaleAfter: 3 * cfg.Telemetry.Interval,
		})
		server := &http.Server{
			Addr: cfg.MetricsAddr(),
			Handler: api.NewRouter(handler, api.MiddlewareConfig{
				CORSAllowedOrigins: cfg.Metrics.CORSOrigins,
				RateLimitRequests:  cfg.Metrics.RateLimit,
				RateLimitWindow:    time.Minute,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddTelemetryService(services.NewHTTPServerService(server, 5*time.Second))
	}

	logging.Info().
		Int("playlist_items", pl.Count()).
		Str("playlist_source", source).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if reason, ok := restarter.Requested(); ok {
		return cli.Exit("restart requested: "+reason, 1)
	}
	logging.Info().Msg("Media player stopped")
	return nil
}
