// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ACMILabs/media-player/internal/breaker"
	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
)

// Fetch sources, also used as metric labels.
const (
	SourceCatalog = "catalog"
	SourceCache   = "cache"
	SourceEmpty   = "empty"
)

// ErrNoPlaylist is returned when neither a playlist id nor a media player id
// is configured.
var ErrNoPlaylist = errors.New("playlist: no playlist or media player id configured")

// maxBodySize bounds a catalog response.
const maxBodySize = 4 << 20

// Config configures a Provider.
type Config struct {
	APIEndpoint   string
	PlaylistID    int
	MediaPlayerID int
	ResourcesDir  string
	CacheFile     string
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration

	// Download fetches resources and subtitles that are not in ResourcesDir
	// yet. DownloadRetries is the number of attempts per file and
	// DownloadTimeout bounds one attempt.
	Download        bool
	DownloadRetries int
	DownloadTimeout time.Duration

	// HTTPClient defaults to a client with Timeout. Downloads use it too but
	// are bounded by DownloadTimeout instead.
	HTTPClient *http.Client
}

// Provider loads playlists from the catalog with a disk cache fallback.
type Provider struct {
	cfg        Config
	client     *http.Client
	downloader *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	files      *gobreaker.CircuitBreaker[int64]
}

// NewProvider returns a provider for cfg.
func NewProvider(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.DownloadRetries <= 0 {
		cfg.DownloadRetries = 3
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Minute
	}
	client := cfg.HTTPClient
	downloader := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
		downloader = &http.Client{}
	}
	return &Provider{
		cfg:        cfg,
		client:     client,
		downloader: downloader,
		breaker:    breaker.New[[]byte]("playlist-catalog", breaker.Config{FailureThreshold: 3}),
		files:      breaker.New[int64]("playlist-download", breaker.Config{FailureThreshold: 5}),
	}
}

// Load returns the current playlist and where it came from. It only fails
// when the cached copy exists but cannot be read or parsed.
func (p *Provider) Load(ctx context.Context) (*Playlist, string, error) {
	raw, source, err := p.raw(ctx)
	if err != nil {
		return nil, "", err
	}
	if source == SourceEmpty {
		metrics.RecordPlaylistFetch(source)
		return &Playlist{}, source, nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("parse playlist from %s: %w", source, err)
	}
	pl := p.resolve(ctx, doc)
	metrics.RecordPlaylistFetch(source)

	logging.Info().
		Str("component", "playlist").
		Str("source", source).
		Int("playlist_id", pl.ID).
		Int("items", len(doc.PlaylistLabels)).
		Int("playable", pl.Count()).
		Msg("playlist loaded")
	return pl, source, nil
}

// raw returns the playlist JSON from the catalog, else from the cache.
func (p *Provider) raw(ctx context.Context) ([]byte, string, error) {
	if p.cfg.APIEndpoint != "" {
		raw, err := p.fetchCatalog(ctx)
		if err == nil {
			if werr := p.writeCache(raw); werr != nil {
				logging.Warn().Err(werr).Str("component", "playlist").Msg("could not write playlist cache")
			}
			return raw, SourceCatalog, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		logging.Warn().
			Err(err).
			Str("component", "playlist").
			Str("endpoint", p.cfg.APIEndpoint).
			Msg("catalog unreachable, using cached playlist")
	}

	raw, err := os.ReadFile(p.cfg.CacheFile)
	switch {
	case err == nil:
		return raw, SourceCache, nil
	case errors.Is(err, os.ErrNotExist):
		logging.Warn().Str("component", "playlist").Str("cache", p.cfg.CacheFile).Msg("no cached playlist, starting empty")
		return nil, SourceEmpty, nil
	default:
		return nil, "", fmt.Errorf("read playlist cache: %w", err)
	}
}

func (p *Provider) fetchCatalog(ctx context.Context) ([]byte, error) {
	id := p.cfg.PlaylistID
	if id == 0 {
		if p.cfg.MediaPlayerID == 0 {
			return nil, ErrNoPlaylist
		}
		body, err := p.get(ctx, p.endpoint("mediaplayers", p.cfg.MediaPlayerID))
		if err != nil {
			return nil, err
		}
		var mp mediaPlayer
		if err := json.Unmarshal(body, &mp); err != nil {
			return nil, fmt.Errorf("parse media player: %w", err)
		}
		if mp.Playlist == 0 {
			return nil, fmt.Errorf("media player %d has no playlist", p.cfg.MediaPlayerID)
		}
		id = mp.Playlist
	}
	return p.get(ctx, p.endpoint("playlists", id))
}

func (p *Provider) endpoint(kind string, id int) string {
	return strings.TrimRight(p.cfg.APIEndpoint, "/") + "/" + kind + "/" + strconv.Itoa(id) + "/"
}

// get fetches url through the breaker, retrying Retries times.
func (p *Provider) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
		}

		body, err := p.breaker.Execute(func() ([]byte, error) {
			return p.getOnce(ctx, url)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err
		if breaker.IsRejected(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (p *Provider) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// writeCache replaces the cache file atomically.
func (p *Provider) writeCache(raw []byte) error {
	if p.cfg.CacheFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.cfg.CacheFile), 0o755); err != nil {
		return err
	}
	tmp := p.cfg.CacheFile + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.cfg.CacheFile)
}

// resolve keeps the items whose media file exists locally, downloading
// missing ones first when Download is set.
func (p *Provider) resolve(ctx context.Context, doc document) *Playlist {
	pl := &Playlist{ID: doc.ID}
	for _, item := range doc.PlaylistLabels {
		local := LocalPath(p.cfg.ResourcesDir, item.Resource)
		if local == "" {
			continue
		}
		if !p.ensureLocal(ctx, item.Resource, local) {
			logging.Warn().
				Str("component", "playlist").
				Str("resource", item.Resource).
				Str("path", local).
				Msg("resource not available locally, skipping")
			continue
		}

		entry := Entry{Resource: item.Resource, Path: local}
		if item.Label != nil {
			id := item.Label.ID
			entry.LabelID = &id
		}
		if subs := LocalPath(p.cfg.ResourcesDir, item.Subtitles); subs != "" {
			if p.ensureLocal(ctx, item.Subtitles, subs) {
				entry.SubtitlesPath = subs
			}
		}
		pl.Entries = append(pl.Entries, entry)
	}
	return pl
}
