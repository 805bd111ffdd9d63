// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ACMILabs/media-player/internal/logging"
	"github.com/ACMILabs/media-player/internal/metrics"
)

// Conn is the part of a follower connection the registry writes to.
type Conn interface {
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

type peer struct {
	id   uint64
	conn Conn
}

// Registry is the server's set of follower connections. The accept loop adds
// to it while the broadcast loop writes to and prunes it.
type Registry struct {
	mu     sync.Mutex
	peers  map[uint64]*peer
	nextID uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[uint64]*peer)}
}

// Add registers conn and returns its id.
func (r *Registry) Add(conn Conn) uint64 {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.peers[id] = &peer{id: id, conn: conn}
	n := len(r.peers)
	r.mu.Unlock()

	metrics.SetSyncPeers(n)
	logging.Info().
		Str("component", "sync-server").
		Str("peer", addrString(conn)).
		Int("total_peers", n).
		Msg("follower connected")
	return id
}

// Len reports the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// snapshot returns the current peers ordered by id.
func (r *Registry) snapshot() []*peer {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].id < peers[j].id })
	return peers
}

// Broadcast writes frame to every peer registered when the call starts. A peer
// whose write fails is closed and removed immediately and never retried; the
// remaining peers still receive the frame.
func (r *Registry) Broadcast(frame []byte, deadline time.Time) (delivered, dropped int) {
	for _, p := range r.snapshot() {
		if err := writeFrame(p.conn, frame, deadline); err != nil {
			r.remove(p, err)
			dropped++
			continue
		}
		delivered++
	}
	return delivered, dropped
}

func writeFrame(c Conn, frame []byte, deadline time.Time) error {
	if !deadline.IsZero() {
		if err := c.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %v", ErrPeerWrite, err)
		}
	}
	if _, err := c.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerWrite, err)
	}
	return nil
}

func (r *Registry) remove(p *peer, cause error) {
	r.mu.Lock()
	delete(r.peers, p.id)
	n := len(r.peers)
	r.mu.Unlock()

	_ = p.conn.Close()
	metrics.SetSyncPeers(n)
	logging.Info().
		Err(cause).
		Str("component", "sync-server").
		Str("peer", addrString(p.conn)).
		Int("total_peers", n).
		Msg("follower dropped")
}

// CloseAll closes and forgets every peer.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[uint64]*peer)
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
	metrics.SetSyncPeers(0)
}

func addrString(c Conn) string {
	if a := c.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
