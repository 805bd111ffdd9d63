// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package main is the entry point for the media player node.
//
// A node plays its playlist on a local media engine (mpv), reports playback
// status to prometheus and the fleet broker, and optionally keeps its
// play-head aligned with the other screens of an installation:
//
//	SYNC_IS_SERVER=true            this node broadcasts its position
//	SYNC_CLIENT_TO=10.1.2.3        this node follows the server at that host
//	(neither)                      this node plays unsynced
//
// # Commands
//
//	mediaplayer [run]              run the player (default)
//	mediaplayer probe --host H     print the sync frames a server broadcasts
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree. When the player asks for its
// own restart (engine exited or stalled) the process exits with status 1 so
// the host's service manager starts a fresh one.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ACMILabs/media-player/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "mediaplayer",
		Usage:   "Synchronized playback for unattended video nodes",
		Version: version,
		Action:  runPlayer,
		Commands: []*cli.Command{
			runCommand(),
			probeCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logging.Error().Err(err).Msg("mediaplayer exited with error")
		os.Exit(1)
	}
}
