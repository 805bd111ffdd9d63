// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ACMILabs/media-player/internal/logging"
)

// MPVConfig configures an mpv process controlled over JSON IPC.
type MPVConfig struct {
	Binary       string
	SocketPath   string
	ExtraArgs    []string
	Playlist     []string
	Subtitles    []string
	Volume       int // 0-10
	HWDec        string
	VO           string
	StartTimeout time.Duration
	CallTimeout  time.Duration
}

// DefaultMPVConfig returns the settings used on the player hardware.
func DefaultMPVConfig() MPVConfig {
	return MPVConfig{
		Binary:       "mpv",
		SocketPath:   "/tmp/mediaplayer-mpv.sock",
		Volume:       10,
		HWDec:        "drm",
		VO:           "gpu-next",
		StartTimeout: 10 * time.Second,
		CallTimeout:  2 * time.Second,
	}
}

// MPV drives an mpv instance via its --input-ipc-server socket.
type MPV struct {
	cfg   MPVConfig
	cmd   *exec.Cmd
	epoch time.Time

	// exited is closed once the child process has been reaped; exitErr is
	// valid after that.
	exited  chan struct{}
	exitErr error

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type mpvResponse struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
}

// StartMPV launches mpv with the configured playlist and connects to its IPC
// socket. The process is killed when ctx is cancelled.
func StartMPV(ctx context.Context, cfg MPVConfig) (*MPV, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("mpv binary path is empty")
	}
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("mpv socket path is required")
	}
	_ = os.Remove(cfg.SocketPath)

	cmd := exec.CommandContext(ctx, cfg.Binary, buildMPVArgs(cfg)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	m, err := dialMPVWithRetry(ctx, cfg)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	m.cmd = cmd
	m.exited = make(chan struct{})
	go func() {
		m.exitErr = cmd.Wait()
		close(m.exited)
	}()

	logging.Info().
		Str("component", "engine").
		Str("socket", cfg.SocketPath).
		Int("items", len(cfg.Playlist)).
		Msg("mpv started")
	return m, nil
}

// DialMPV attaches to an mpv instance that is already listening on
// cfg.SocketPath.
func DialMPV(ctx context.Context, cfg MPVConfig) (*MPV, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial mpv ipc %s: %w", cfg.SocketPath, err)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultMPVConfig().CallTimeout
	}
	return &MPV{
		cfg:    cfg,
		epoch:  time.Now(),
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

func dialMPVWithRetry(ctx context.Context, cfg MPVConfig) (*MPV, error) {
	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = DefaultMPVConfig().StartTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		m, err := DialMPV(ctx, cfg)
		if err == nil {
			return m, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("mpv ipc not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func buildMPVArgs(cfg MPVConfig) []string {
	args := []string{
		"--input-ipc-server=" + cfg.SocketPath,
		"--idle=yes",
		"--fullscreen",
		"--loop-playlist=inf",
		"--no-osc",
		"--no-input-default-bindings",
		"--really-quiet",
		"--profile=low-latency",
		"--cursor-autohide=always",
		fmt.Sprintf("--volume=%d", clampVolume(cfg.Volume)*10),
	}
	if cfg.HWDec != "" {
		args = append(args, "--hwdec="+cfg.HWDec)
	}
	if cfg.VO != "" {
		args = append(args, "--vo="+cfg.VO)
	}
	args = append(args, cfg.ExtraArgs...)

	// Subtitles are per item: mpv scopes options inside --{ ... --} to the
	// files in that block.
	for i, path := range cfg.Playlist {
		var sub string
		if i < len(cfg.Subtitles) {
			sub = cfg.Subtitles[i]
		}
		if sub == "" {
			args = append(args, path)
			continue
		}
		args = append(args, "--{", "--sub-file="+sub, path, "--}")
	}
	return args
}

func clampVolume(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	default:
		return v
	}
}

// call sends one IPC command and waits for its reply, skipping async events.
func (m *MPV) call(ctx context.Context, args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil, fmt.Errorf("%w: ipc closed", ErrUnavailable)
	}

	deadline := time.Now().Add(m.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := m.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set ipc deadline: %w", err)
	}

	m.nextID++
	id := m.nextID
	req, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("encode mpv command: %w", err)
	}
	if _, err := m.conn.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("%w: write ipc: %v", ErrUnavailable, err)
	}

	for {
		line, err := m.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: read ipc: %v", ErrUnavailable, err)
		}
		var resp mpvResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode mpv reply: %w", err)
		}
		if resp.Event != "" || resp.RequestID != id {
			continue
		}
		switch resp.Error {
		case "success":
			return resp.Data, nil
		case "property unavailable":
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, args)
		default:
			return nil, fmt.Errorf("mpv %v: %s", args, resp.Error)
		}
	}
}

func (m *MPV) floatProperty(ctx context.Context, name string) (float64, error) {
	data, err := m.call(ctx, "get_property", name)
	if err != nil {
		return 0, err
	}
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s is null", ErrUnavailable, name)
	}
	return *v, nil
}

func secondsToMS(s float64) int64 {
	return int64(math.Round(s * 1000))
}

func (m *MPV) RawTime(ctx context.Context) (int64, error) {
	s, err := m.floatProperty(ctx, "time-pos")
	if err != nil {
		return 0, err
	}
	return secondsToMS(s), nil
}

func (m *MPV) Length(ctx context.Context) (int64, error) {
	s, err := m.floatProperty(ctx, "duration")
	if errors.Is(err, ErrUnavailable) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return secondsToMS(s), nil
}

func (m *MPV) PlaylistIndex(ctx context.Context) (int, bool, error) {
	f, err := m.floatProperty(ctx, "playlist-pos")
	if err != nil {
		return 0, false, err
	}
	idx := int(f)
	if idx < 0 {
		return 0, false, nil
	}
	return idx, true, nil
}

func (m *MPV) Seek(ctx context.Context, ms int64) error {
	_, err := m.call(ctx, "seek", float64(ms)/1000, "absolute+exact")
	return err
}

func (m *MPV) PlayItemAtIndex(ctx context.Context, index int) error {
	_, err := m.call(ctx, "set_property", "playlist-pos", index)
	return err
}

// Clock is the monotonic time since the adapter connected.
func (m *MPV) Clock() time.Duration {
	return time.Since(m.epoch)
}

// Volume reports mpv's volume in percent.
func (m *MPV) Volume(ctx context.Context) (float64, error) {
	return m.floatProperty(ctx, "volume")
}

// SetVolume sets the volume on the 0-10 scale used by the catalog.
func (m *MPV) SetVolume(ctx context.Context, level int) error {
	_, err := m.call(ctx, "set_property", "volume", clampVolume(level)*10)
	return err
}

func (m *MPV) DroppedFrames(ctx context.Context) (DroppedFrames, error) {
	out, err := m.floatProperty(ctx, "frame-drop-count")
	if err != nil {
		return DroppedFrames{}, err
	}
	dec, err := m.floatProperty(ctx, "decoder-frame-drop-count")
	if err != nil {
		return DroppedFrames{}, err
	}
	return DroppedFrames{Decoder: int64(dec), Output: int64(out)}, nil
}

// Close asks mpv to quit and reaps the process if this adapter started it.
func (m *MPV) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	defer cancel()
	if m.cmd != nil {
		_, _ = m.call(ctx, "quit")
	}

	m.mu.Lock()
	var err error
	if m.conn != nil {
		err = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	if m.cmd != nil {
		select {
		case <-m.exited:
		case <-time.After(5 * time.Second):
			_ = m.cmd.Process.Kill()
			<-m.exited
		}
	}
	return err
}

// Exited is closed when a process started by StartMPV exits. It is nil, and
// so never ready, for an instance attached with DialMPV.
func (m *MPV) Exited() <-chan struct{} {
	return m.exited
}

// ExitErr reports how the process ended. Only valid once Exited is closed.
func (m *MPV) ExitErr() error {
	return m.exitErr
}
