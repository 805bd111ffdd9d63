// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package playlist loads the player's playlist from the catalog API and maps
// it onto media files already deployed under the resources directory.
//
// Catalog responses are cached on disk. When the catalog is unreachable the
// cached copy is played, and without a cache the player starts with an
// empty playlist rather than failing.
package playlist

import (
	"net/url"
	"path"
	"path/filepath"
)

// Label identifies the exhibition label an item belongs to.
type Label struct {
	ID int `json:"id"`
}

// Item is one catalog entry as returned by the API.
type Item struct {
	Label     *Label `json:"label"`
	Resource  string `json:"resource"`
	Subtitles string `json:"subtitles,omitempty"`
}

// document is the body of GET <api>/playlists/<id>/.
type document struct {
	ID             int    `json:"id"`
	PlaylistLabels []Item `json:"playlist_labels"`
}

// mediaPlayer is the body of GET <api>/mediaplayers/<id>/.
type mediaPlayer struct {
	ID       int `json:"id"`
	Playlist int `json:"playlist"`
}

// Entry is a playable item with its local file paths.
type Entry struct {
	LabelID       *int
	Resource      string
	Path          string
	SubtitlesPath string
}

// Filename is the base name of the local media file.
func (e Entry) Filename() string {
	return filepath.Base(e.Path)
}

// Playlist is the ordered set of playable entries.
type Playlist struct {
	ID      int
	Entries []Entry
}

// Count returns the number of playable entries.
func (p *Playlist) Count() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// LabelAt returns the label id of entry i. ok is false when i is out of
// range or the entry has no label.
func (p *Playlist) LabelAt(i int) (id int, ok bool) {
	if p == nil || i < 0 || i >= len(p.Entries) || p.Entries[i].LabelID == nil {
		return 0, false
	}
	return *p.Entries[i].LabelID, true
}

// Entry returns entry i.
func (p *Playlist) Entry(i int) (Entry, bool) {
	if p == nil || i < 0 || i >= len(p.Entries) {
		return Entry{}, false
	}
	return p.Entries[i], true
}

// Paths lists the media files in play order.
func (p *Playlist) Paths() []string {
	if p == nil {
		return nil
	}
	paths := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		paths[i] = e.Path
	}
	return paths
}

// SubtitlePaths is index-aligned with Paths. Items without subtitles hold "".
func (p *Playlist) SubtitlePaths() []string {
	if p == nil {
		return nil
	}
	subs := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		subs[i] = e.SubtitlesPath
	}
	return subs
}

// LocalPath maps a resource URL to <dir>/<basename of the URL path>. An
// unparseable or path-less URL yields "".
func LocalPath(dir, resource string) string {
	if resource == "" {
		return ""
	}
	u, err := url.Parse(resource)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return filepath.Join(dir, base)
}
