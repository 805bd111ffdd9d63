// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/wire"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Connect to a sync server and print the frames it broadcasts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Usage:    "Sync server host",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Sync server port",
				Value: 10000,
			},
			&cli.StringFlag{
				Name:  "framing",
				Usage: "Wire framing: text or binary",
				Value: string(wire.FramingText),
			},
			&cli.IntFlag{
				Name:  "fields",
				Usage: "Fields per frame: 2 (position, time) or 1 (time only)",
				Value: 2,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many frames, 0 runs until interrupted",
			},
		},
		Action: runProbe,
	}
}

func runProbe(ctx context.Context, cmd *cli.Command) error {
	codec, err := wire.NewCodec(wire.Framing(cmd.String("framing")), int(cmd.Int("fields")))
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(cmd.String("host"), strconv.Itoa(int(cmd.Int("port"))))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := playsync.NewClient(playsync.ClientConfig{
		Addr:         addr,
		Codec:        codec,
		RefusedDelay: time.Second,
		ErrorDelay:   5 * time.Second,
	})
	return probe(ctx, client, cmd.Root().Writer, int(cmd.Int("count")))
}

// frameSource is satisfied by *playsync.Client.
type frameSource interface {
	Serve(ctx context.Context) error
	Messages() <-chan wire.Message
}

// probe prints frames from src to w until ctx is done or limit frames were
// printed.
func probe(ctx context.Context, src frameSource, w io.Writer, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- src.Serve(ctx) }()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case m := <-src.Messages():
			if _, err := fmt.Fprintf(w, "position=%d time_ms=%d\n", m.Position, m.TimeMS); err != nil {
				return err
			}
			printed++
			if limit > 0 && printed >= limit {
				return nil
			}
		}
	}
}
