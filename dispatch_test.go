// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package edge_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/cheng-zhongliang/edge"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runDispatcher starts d in the background and stops it at cleanup.
func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		if err := g.Wait(); err != nil {
			t.Error(err)
		}
	})
}

func newDispatcher(ln *Listener, mon *Monitor, out *syncBuffer, stats *WorkerStats) *Dispatcher {
	progress := NewProgress(out, time.Now())
	return &Dispatcher{
		Monitor:  mon,
		Listener: ln,
		Spawner: &GoroutineSpawner{Worker: &Worker{
			Listener: ln,
			Progress: progress,
			Stats:    stats,
		}},
		Progress: progress,
		Timeout:  20 * time.Millisecond,
	}
}

func TestDispatchLevelServesEveryClient(t *testing.T) {
	const clients = 8

	// Non-blocking so that surplus workers started by level triggering fail
	// fast instead of waiting for a connection that never comes.
	ln := listen(t, true)
	mon := monitor(t, ln, Level)
	var out syncBuffer
	var stats WorkerStats
	d := newDispatcher(ln, mon, &out, &stats)
	runDispatcher(t, d)

	for i := 0; i < clients; i++ {
		c, err := Dial(ln.Endpoint())
		if err != nil {
			t.Fatal(err)
		}
		c.Close()
	}

	eventually(t, "every client accepted", func() bool {
		return stats.Accepted.Load() >= clients
	})
	if n := d.Stats().Spawned.Load(); n < clients {
		t.Fatalf("spawned %d workers for %d clients", n, clients)
	}
	eventually(t, "workers exiting", func() bool {
		return stats.Exited.Load() >= clients
	})

	text := out.String()
	for _, want := range []string{"parent: 1 event(s)", "parent: forking child 1", "child 1 (pid ", ": accepted", ": exiting"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output lacks %q:\n%s", want, text)
		}
	}
}

func TestDispatchEdgeStarvation(t *testing.T) {
	const clients = 5

	ln := listen(t, true)
	for i := 0; i < clients; i++ {
		dial(t, ln.Endpoint())
	}

	// The whole burst is pending before registration: one edge for five
	// connections.
	mon := monitor(t, ln, Edge)
	var out syncBuffer
	var stats WorkerStats
	d := newDispatcher(ln, mon, &out, &stats)
	runDispatcher(t, d)

	eventually(t, "first worker", func() bool { return stats.Accepted.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)

	if n := d.Stats().Spawned.Load(); n != 1 {
		t.Fatalf("spawned %d workers, want 1", n)
	}

	left := 0
	for {
		fd, err := ln.Accept()
		if err != nil {
			if !WouldBlock(err) {
				t.Fatal(err)
			}
			break
		}
		unix.Close(fd)
		left++
	}
	if left != clients-1 {
		t.Fatalf("%d connections starved, want %d", left, clients-1)
	}
}

func TestDispatchEdgeDrain(t *testing.T) {
	const clients = 5

	ln := listen(t, true)
	for i := 0; i < clients; i++ {
		dial(t, ln.Endpoint())
	}

	mon := monitor(t, ln, Edge)
	var out syncBuffer
	var stats WorkerStats
	d := newDispatcher(ln, mon, &out, &stats)
	d.Drain = true
	runDispatcher(t, d)

	eventually(t, "every client accepted", func() bool {
		return stats.Accepted.Load() == clients
	})
	if n := d.Stats().Drained.Load(); n != clients {
		t.Fatalf("drained %d", n)
	}
	if n := d.Stats().Spawned.Load(); n != clients {
		t.Fatalf("spawned %d", n)
	}
	if n := stats.Failed.Load(); n != 0 {
		t.Fatalf("%d workers failed", n)
	}
}

func TestDispatchStopsOnCancel(t *testing.T) {
	ln := listen(t, false)
	mon := monitor(t, ln, Level)
	d := newDispatcher(ln, mon, &syncBuffer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatchMonitorFailure(t *testing.T) {
	ln := listen(t, false)
	mon, err := NewMonitor()
	if err != nil {
		t.Fatal(err)
	}
	mon.Close()

	d := newDispatcher(ln, mon, &syncBuffer{}, nil)
	if err := d.Run(context.Background()); err != ErrClosed {
		t.Fatalf("got %v", err)
	}
}

func TestProcessSpawner(t *testing.T) {
	ln := listen(t, false)
	dial(t, ln.Endpoint())

	out, err := os.CreateTemp("", "edge-worker")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(out.Name())
	defer out.Close()

	reaped := make(chan error, 1)
	var stats WorkerStats
	s := &ProcessSpawner{
		Stats:    &stats,
		Listener: ln,
		Sleep:    10 * time.Millisecond,
		Progress: NewProgress(out, time.Now()),
		Stdout:   out,
		Stderr:   out,
		Reaped:   reaped,
	}
	if err := s.Spawn(Job{ID: 7, Conn: -1}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-reaped:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker not reaped")
	}
	if n := s.Running(); n != 0 {
		t.Fatalf("%d running", n)
	}
	if stats.Started.Load() != 1 || stats.Accepted.Load() != 1 || stats.Failed.Load() != 0 {
		t.Fatalf("stats: started %d accepted %d failed %d",
			stats.Started.Load(), stats.Accepted.Load(), stats.Failed.Load())
	}

	text, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"child 7 (pid ", "child 7: accepted", "child 7: exiting"} {
		if !strings.Contains(string(text), want) {
			t.Fatalf("output lacks %q:\n%s", want, text)
		}
	}

	if err := ln.SetNonblock(true); err != nil {
		t.Fatal(err)
	}
	if _, err := ln.Accept(); !WouldBlock(err) {
		t.Fatalf("connection was not taken by the worker: %v", err)
	}
}

func TestProcessSpawnerFailureClosesConn(t *testing.T) {
	ln := listen(t, false)
	dial(t, ln.Endpoint())
	fd, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}

	s := &ProcessSpawner{Path: "/nonexistent/edge-worker", Listener: ln}
	if err := s.Spawn(Job{ID: 1, Conn: fd}); !errors.Is(err, ErrSpawn) {
		unix.Close(fd)
		t.Fatalf("got %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != unix.EBADF {
		unix.Close(fd)
		t.Fatalf("adopted connection still open: %v", err)
	}
	if n := s.Running(); n != 0 {
		t.Fatalf("%d running", n)
	}
}

func TestServe(t *testing.T) {
	for _, workers := range []string{"goroutine", "process"} {
		t.Run(workers, func(t *testing.T) {
			out, err := os.CreateTemp("", "edge-serve")
			if err != nil {
				t.Fatal(err)
			}
			defer os.Remove(out.Name())
			defer out.Close()

			cfg := DispatcherConfig{
				Endpoint:  UnixEndpoint(sockPath(t)),
				Trigger:   Edge,
				Workers:   workers,
				Timeout:   20 * time.Millisecond,
				MaxEvents: DefaultMaxEvents,
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- Serve(ctx, cfg, out, out) }()

			var c Conn
			eventually(t, "listener", func() bool {
				c, err = Dial(cfg.Endpoint)
				return err == nil
			})
			defer c.Close()

			eventually(t, "worker exit", func() bool {
				text, _ := os.ReadFile(out.Name())
				return strings.Contains(string(text), "child 1: exiting")
			})

			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}

			text, err := os.ReadFile(out.Name())
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(text), "1 worker(s) started") {
				t.Fatalf("no worker summary:\n%s", text)
			}
		})
	}
}
