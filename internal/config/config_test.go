// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package config

import (
	"testing"
	"time"

	"github.com/ACMILabs/media-player/internal/playsync"
	"github.com/ACMILabs/media-player/internal/wire"
)

func TestSyncRole(t *testing.T) {
	tests := []struct {
		name string
		sync SyncConfig
		want playsync.Role
	}{
		{"unsynced", SyncConfig{}, playsync.RoleNone},
		{"server", SyncConfig{IsServer: true}, playsync.RoleServer},
		{"client", SyncConfig{ClientTo: "10.0.0.1"}, playsync.RoleClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sync.Role(); got != tt.want {
				t.Errorf("Role() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncAddresses(t *testing.T) {
	s := SyncConfig{Port: 10000}
	if got := s.ListenAddr(); got != ":10000" {
		t.Errorf("ListenAddr() = %q, want :10000", got)
	}
	if got := s.ServerAddr(); got != "" {
		t.Errorf("ServerAddr() = %q, want empty without a server host", got)
	}

	s.ClientTo = "fe80::1"
	if got := s.ServerAddr(); got != "[fe80::1]:10000" {
		t.Errorf("ServerAddr() = %q, want [fe80::1]:10000", got)
	}
}

func TestCoordinatorConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sync.ClientTo = "player-1"
	cfg.Sync.Framing = "binary"
	cfg.Sync.Fields = 1

	cc, err := cfg.Coordinator()
	if err != nil {
		t.Fatalf("Coordinator() error = %v", err)
	}
	if cc.Role != playsync.RoleClient {
		t.Errorf("Role = %q, want client", cc.Role)
	}
	want := playsync.Policy{
		DriftThreshold:    40 * time.Millisecond,
		SyncLatency:       30 * time.Millisecond,
		IgnoreThreshold:   2 * time.Second,
		BroadcastInterval: time.Second,
	}
	if cc.Policy != want {
		t.Errorf("Policy = %+v, want %+v", cc.Policy, want)
	}
	if cc.Client.Addr != "player-1:10000" {
		t.Errorf("Client.Addr = %q", cc.Client.Addr)
	}
	if cc.Client.Codec.Framing() != wire.FramingBinary || cc.Client.Codec.Fields() != 1 {
		t.Errorf("Client.Codec = %v/%d", cc.Client.Codec.Framing(), cc.Client.Codec.Fields())
	}
	if cc.Server.Codec != cc.Client.Codec {
		t.Error("server and client must share one codec")
	}
	if cc.Client.ResyncThreshold != 3 || cc.Client.ErrorDelay != time.Minute {
		t.Errorf("Client reconnect = %+v", cc.Client)
	}
}

func TestValidateMetricsPortCollision(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sync.IsServer = true
	cfg.Metrics.Port = cfg.Sync.Port
	if err := cfg.Validate(); err == nil {
		t.Error("expected a port collision error")
	}

	cfg.Sync.IsServer = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("clients do not listen on the sync port: %v", err)
	}
}
