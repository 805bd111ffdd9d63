// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playlist

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mediaHost serves a one-item playlist whose files live on the same server.
type mediaHost struct {
	srv   *httptest.Server
	heads atomic.Int32
	gets  atomic.Int32
}

func newMediaHost(t *testing.T, media http.HandlerFunc) *mediaHost {
	t.Helper()
	h := &mediaHost{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/playlists/3/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `{"id": 3, "playlist_labels": [
			{"label": {"id": 5}, "resource": "%[1]s/media/new.mp4", "subtitles": "%[1]s/media/new.srt"}
		]}`, h.srv.URL)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			h.heads.Add(1)
		} else {
			h.gets.Add(1)
		}
		media(w, r)
	})
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func serveFiles(w http.ResponseWriter, r *http.Request) {
	body := "video-bytes"
	if strings.HasSuffix(r.URL.Path, ".srt") {
		body = "1\n00:00:01,000 --> 00:00:02,000\nhello\n"
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(body))
}

func TestLoadDownloadsMissingResources(t *testing.T) {
	h := newMediaHost(t, serveFiles)
	dir := t.TempDir()

	p := NewProvider(Config{
		APIEndpoint:  h.srv.URL + "/api",
		PlaylistID:   3,
		ResourcesDir: dir,
		CacheFile:    filepath.Join(t.TempDir(), "playlist.json"),
		Download:     true,
	})
	pl, _, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after download", pl.Count())
	}

	raw, err := os.ReadFile(filepath.Join(dir, "new.mp4"))
	if err != nil || string(raw) != "video-bytes" {
		t.Errorf("new.mp4 = %q, %v", raw, err)
	}
	if got := pl.Entries[0].SubtitlesPath; got != filepath.Join(dir, "new.srt") {
		t.Errorf("SubtitlesPath = %q", got)
	}
	if h.heads.Load() != 2 || h.gets.Load() != 2 {
		t.Errorf("HEAD %d GET %d, want 2 each", h.heads.Load(), h.gets.Load())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}

	// A second load finds the files on disk.
	if _, _, err := p.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if h.gets.Load() != 2 {
		t.Errorf("GET count = %d after second load, want no new downloads", h.gets.Load())
	}
}

func TestDownloadRetries(t *testing.T) {
	var failed atomic.Bool
	h := newMediaHost(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, ".mp4") && !failed.Swap(true) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serveFiles(w, r)
	})
	dir := t.TempDir()

	p := NewProvider(Config{
		APIEndpoint:     h.srv.URL + "/api",
		PlaylistID:      3,
		ResourcesDir:    dir,
		CacheFile:       filepath.Join(t.TempDir(), "playlist.json"),
		RetryDelay:      time.Millisecond,
		Download:        true,
		DownloadRetries: 2,
	})
	pl, _, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after retry", pl.Count())
	}
	// Two GETs for the video, one for the subtitles.
	if h.gets.Load() != 3 {
		t.Errorf("GET count = %d, want 3", h.gets.Load())
	}
}

func TestDownloadGivesUpWhenRemoteMissing(t *testing.T) {
	h := newMediaHost(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	dir := t.TempDir()

	p := NewProvider(Config{
		APIEndpoint:     h.srv.URL + "/api",
		PlaylistID:      3,
		ResourcesDir:    dir,
		CacheFile:       filepath.Join(t.TempDir(), "playlist.json"),
		RetryDelay:      time.Millisecond,
		Download:        true,
		DownloadRetries: 2,
	})
	pl, _, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pl.Count() != 0 {
		t.Errorf("Count() = %d, want 0 when the file cannot be fetched", pl.Count())
	}
	if h.gets.Load() != 0 {
		t.Errorf("GET count = %d, want 0 after failed HEAD", h.gets.Load())
	}
	if h.heads.Load() != 2 {
		t.Errorf("HEAD count = %d, want one per attempt", h.heads.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "new.mp4")); !os.IsNotExist(err) {
		t.Errorf("new.mp4 should not exist: %v", err)
	}
}

func TestDownloadDisabled(t *testing.T) {
	h := newMediaHost(t, serveFiles)

	p := NewProvider(Config{
		APIEndpoint:  h.srv.URL + "/api",
		PlaylistID:   3,
		ResourcesDir: t.TempDir(),
		CacheFile:    filepath.Join(t.TempDir(), "playlist.json"),
	})
	pl, _, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pl.Count() != 0 || h.heads.Load()+h.gets.Load() != 0 {
		t.Errorf("Count() = %d, media requests = %d, want none", pl.Count(), h.heads.Load()+h.gets.Load())
	}
}

func TestIsRemote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resource string
		want     bool
	}{
		{"https://cdn.example/a.mp4", true},
		{"HTTP://cdn.example/a.mp4", true},
		{"/media/a.mp4", false},
		{"file:///media/a.mp4", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isRemote(tt.resource); got != tt.want {
			t.Errorf("isRemote(%q) = %v, want %v", tt.resource, got, tt.want)
		}
	}
}
