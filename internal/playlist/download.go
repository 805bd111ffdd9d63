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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ACMILabs/media-player/internal/breaker"
	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
)

// ensureLocal reports whether path exists, downloading resource into it
// first when it is missing and downloads are enabled.
func (p *Provider) ensureLocal(ctx context.Context, resource, path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	if !p.cfg.Download || !isRemote(resource) {
		return false
	}

	n, err := p.download(ctx, resource, path)
	if err != nil {
		metrics.RecordResourceDownload("failure")
		logging.Warn().
			Err(err).
			Str("component", "playlist").
			Str("resource", resource).
			Int("attempts", p.cfg.DownloadRetries).
			Msg("resource download failed")
		return false
	}
	metrics.RecordResourceDownload("success")
	logging.Info().
		Str("component", "playlist").
		Str("resource", resource).
		Str("path", path).
		Int64("bytes", n).
		Msg("resource downloaded")
	return true
}

func isRemote(resource string) bool {
	u, err := url.Parse(resource)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// download fetches resource into path, trying DownloadRetries times.
func (p *Provider) download(ctx context.Context, resource, path string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.DownloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
		}

		n, err := p.files.Execute(func() (int64, error) {
			return p.downloadOnce(ctx, resource, path)
		})
		if err == nil {
			return n, nil
		}
		lastErr = err
		if breaker.IsRejected(err) || ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

// downloadOnce checks the remote file exists, then streams it into a
// temporary file next to path and renames it into place.
func (p *Provider) downloadOnce(ctx context.Context, resource, path string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()

	if err := p.head(ctx, resource); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.downloader.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: unexpected status %d", resource, resp.StatusCode)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: got %d of %d bytes", path, n, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}
	tmpName = ""
	return n, nil
}

var errRemoteMissing = errors.New("remote file not available")

// head fails when the server reports the file missing. Servers that do not
// implement HEAD are given the benefit of the doubt.
func (p *Provider) head(ctx context.Context, resource string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resource, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.downloader.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HEAD %s: status %d", errRemoteMissing, resource, resp.StatusCode)
	}
	return nil
}
