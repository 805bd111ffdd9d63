// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package config_test

import (
	"fmt"

	"github.com/ACMILabs/media-player/internal/config"
	"github.com/ACMILabs/media-player/internal/engine"
	"github.com/ACMILabs/media-player/internal/playsync"
)

func ExampleConfig_Coordinator() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("invalid configuration:", err)
		return
	}
	cc, err := cfg.Coordinator()
	if err != nil {
		fmt.Println("sync settings:", err)
		return
	}
	coord, err := playsync.NewCoordinator(cc, engine.NewFake())
	if err != nil {
		fmt.Println("coordinator:", err)
		return
	}
	_ = coord
}
