// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package engine

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory engine with scriptable readings. It records every seek
// and jump it receives. Fake is used by tests and by the "fake" engine kind,
// which lets a node take part in a sync group without a display.
type Fake struct {
	mu      sync.Mutex
	raw     int64
	length  int64
	index   int
	known   bool
	clock   time.Duration
	clocks  []time.Duration
	err     error
	volume  float64
	dropped DroppedFrames
	seeks   []int64
	jumps   []int
	closed  bool
}

// NewFake returns a Fake positioned at index 0 with nothing playing.
func NewFake() *Fake {
	return &Fake{known: true, volume: 100}
}

// SetRawTime sets the reported playhead.
func (f *Fake) SetRawTime(ms int64) {
	f.mu.Lock()
	f.raw = ms
	f.mu.Unlock()
}

// SetLength sets the reported item length.
func (f *Fake) SetLength(ms int64) {
	f.mu.Lock()
	f.length = ms
	f.mu.Unlock()
}

// SetIndex sets the reported playlist index.
func (f *Fake) SetIndex(index int, known bool) {
	f.mu.Lock()
	f.index, f.known = index, known
	f.mu.Unlock()
}

// SetClock sets the engine clock.
func (f *Fake) SetClock(d time.Duration) {
	f.mu.Lock()
	f.clock = d
	f.mu.Unlock()
}

// QueueClock queues clock readings returned by successive Clock calls before
// falling back to the value set with SetClock.
func (f *Fake) QueueClock(ds ...time.Duration) {
	f.mu.Lock()
	f.clocks = append(f.clocks, ds...)
	f.mu.Unlock()
}

// SetErr makes every reading fail with err. A nil err clears the failure.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// SetDroppedFrames sets the reported drop counters.
func (f *Fake) SetDroppedFrames(d DroppedFrames) {
	f.mu.Lock()
	f.dropped = d
	f.mu.Unlock()
}

// Seeks returns the seek targets received so far.
func (f *Fake) Seeks() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.seeks...)
}

// Jumps returns the playlist jumps received so far.
func (f *Fake) Jumps() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.jumps...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) RawTime(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.raw, nil
}

func (f *Fake) Length(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.length, nil
}

func (f *Fake) PlaylistIndex(context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	return f.index, f.known, nil
}

func (f *Fake) Seek(_ context.Context, ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seeks = append(f.seeks, ms)
	f.raw = ms
	return nil
}

func (f *Fake) PlayItemAtIndex(_ context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jumps = append(f.jumps, index)
	f.index, f.known = index, true
	f.raw = 0
	return nil
}

func (f *Fake) Clock() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clocks) > 0 {
		f.clock = f.clocks[0]
		f.clocks = f.clocks[1:]
	}
	return f.clock
}

func (f *Fake) Volume(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.volume, nil
}

func (f *Fake) DroppedFrames(context.Context) (DroppedFrames, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return DroppedFrames{}, f.err
	}
	return f.dropped, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
