// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playlist

import (
	"fmt"
	"os"
	"path/filepath"
)

// Prune deletes regular files in dir that pl does not reference, keeping the
// names in keep (such as the cache file). It returns the removed paths.
// An empty playlist prunes nothing, so a catalog outage on a fresh cache
// never wipes the media store.
func Prune(dir string, pl *Playlist, keep ...string) ([]string, error) {
	if pl.Count() == 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, 2*pl.Count()+len(keep))
	for _, e := range pl.Entries {
		wanted[filepath.Base(e.Path)] = true
		if e.SubtitlesPath != "" {
			wanted[filepath.Base(e.SubtitlesPath)] = true
		}
	}
	for _, k := range keep {
		wanted[filepath.Base(k)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read resources dir: %w", err)
	}

	var removed []string
	for _, de := range entries {
		if !de.Type().IsRegular() || wanted[de.Name()] {
			continue
		}
		p := filepath.Join(dir, de.Name())
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
