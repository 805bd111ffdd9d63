// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package playsync

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ACMILabs/media-player/internal/wire"
)

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

func TestClientRetryDelay(t *testing.T) {
	t.Parallel()

	c := NewClient(DefaultClientConfig("127.0.0.1:10000"))
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"connection refused", refusedErr(), time.Second},
		{"host unreachable", &net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.EHOSTUNREACH}}, 60 * time.Second},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "sync-server"}, 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.retryDelay(tt.err); got != tt.want {
				t.Errorf("retryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

// scriptedDialer hands out results in order, recording each call.
type scriptedDialer struct {
	mu      sync.Mutex
	results []func() (net.Conn, error)
	calls   chan struct{}
}

func newScriptedDialer(results ...func() (net.Conn, error)) *scriptedDialer {
	return &scriptedDialer{results: results, calls: make(chan struct{}, 16)}
}

func (d *scriptedDialer) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	d.mu.Lock()
	var next func() (net.Conn, error)
	if len(d.results) > 0 {
		next = d.results[0]
		d.results = d.results[1:]
	}
	d.mu.Unlock()

	d.calls <- struct{}{}
	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return next()
}

func fail(err error) func() (net.Conn, error) {
	return func() (net.Conn, error) { return nil, err }
}

func pipe(serverSide chan<- net.Conn) func() (net.Conn, error) {
	return func() (net.Conn, error) {
		client, server := net.Pipe()
		serverSide <- server
		return client, nil
	}
}

func expectCall(t *testing.T, d *scriptedDialer, within time.Duration) {
	t.Helper()
	select {
	case <-d.calls:
	case <-time.After(within):
		t.Fatal("expected a dial attempt")
	}
}

func expectNoCall(t *testing.T, d *scriptedDialer, within time.Duration) {
	t.Helper()
	select {
	case <-d.calls:
		t.Fatal("unexpected dial attempt")
	case <-time.After(within):
	}
}

func TestClientReconnectDelays(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newScriptedDialer(fail(refusedErr()), fail(errors.New("network is down")))

	cfg := DefaultClientConfig("sync-server:10000")
	cfg.Clock = clock
	cfg.Dial = d.Dial
	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	// Refused: retried after the short delay.
	expectCall(t, d, 2*time.Second)
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	expectCall(t, d, 2*time.Second)

	// Any other error: the short delay is not enough.
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	expectNoCall(t, d, 50*time.Millisecond)
	clock.Advance(59 * time.Second)
	expectCall(t, d, 2*time.Second)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestClientDeliversFramesInOrder(t *testing.T) {
	servers := make(chan net.Conn, 1)
	d := newScriptedDialer(pipe(servers))

	cfg := DefaultClientConfig("sync-server:10000")
	cfg.Dial = d.Dial
	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { _ = c.Serve(ctx) }()

	server := <-servers
	defer server.Close()
	for _, chunk := range []string{"1,100\n1,2", "00\n", "2,30"} {
		if _, err := server.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := server.Write([]byte("0\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []wire.Message{{Position: 1, TimeMS: 100}, {Position: 1, TimeMS: 200}, {Position: 2, TimeMS: 300}}
	for i, w := range want {
		select {
		case got := <-c.Messages():
			if got != w {
				t.Errorf("message %d = %+v, want %+v", i, got, w)
			}
		case <-ctx.Done():
			t.Fatalf("message %d never arrived", i)
		}
	}
}

func TestClientResyncEscalation(t *testing.T) {
	servers := make(chan net.Conn, 2)
	d := newScriptedDialer(pipe(servers), pipe(servers))

	cfg := DefaultClientConfig("sync-server:10000")
	cfg.Dial = d.Dial
	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { _ = c.Serve(ctx) }()

	first := <-servers
	defer first.Close()
	expectCall(t, d, time.Second)

	// Three bad frames are tolerated.
	if _, err := first.Write([]byte("x\ny\nz\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoCall(t, d, 50*time.Millisecond)

	// A good frame resets the counter.
	if _, err := first.Write([]byte("1,10\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	<-c.Messages()
	if _, err := first.Write([]byte("x\ny\nz\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoCall(t, d, 50*time.Millisecond)

	// The fourth consecutive bad frame forces a new session at once.
	if _, err := first.Write([]byte("w\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectCall(t, d, 2*time.Second)

	second := <-servers
	defer second.Close()
	if _, err := second.Write([]byte("3,900\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-c.Messages():
		if got != (wire.Message{Position: 3, TimeMS: 900}) {
			t.Errorf("after resync got %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("no message after resync")
	}
}

// frameServer accepts followers on ln and writes frame to each of them
// every few milliseconds until stopped.
type frameServer struct {
	ln    net.Listener
	frame []byte

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

func startFrameServer(t *testing.T, addr string, frame string) *frameServer {
	t.Helper()

	var ln net.Listener
	var err error
	deadline := time.Now().Add(5 * time.Second)
	for {
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listen %s: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	s := &frameServer{ln: ln, frame: []byte(frame)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				for {
					if _, err := conn.Write(s.frame); err != nil {
						return
					}
					time.Sleep(10 * time.Millisecond)
				}
			}()
		}
	}()
	return s
}

func (s *frameServer) Stop() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func awaitMessage(t *testing.T, c *Client, want wire.Message, within time.Duration) {
	t.Helper()
	timeout := time.After(within)
	for {
		select {
		case got := <-c.Messages():
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("did not receive %+v within %v", want, within)
		}
	}
}

func TestClientReconnectLiveness(t *testing.T) {
	srv := startFrameServer(t, "127.0.0.1:0", "1,100\n")
	addr := srv.ln.Addr().String()

	cfg := DefaultClientConfig(addr)
	cfg.RefusedDelay = 20 * time.Millisecond
	cfg.ErrorDelay = 20 * time.Millisecond
	cfg.ReadTimeout = time.Second
	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	awaitMessage(t, c, wire.Message{Position: 1, TimeMS: 100}, 5*time.Second)

	// Kill the server and its sockets, then bring it back on the same port.
	srv.Stop()
	time.Sleep(100 * time.Millisecond)
	srv = startFrameServer(t, addr, "2,200\n")
	defer srv.Stop()

	awaitMessage(t, c, wire.Message{Position: 2, TimeMS: 200}, 10*time.Second)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}
