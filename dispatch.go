// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// DispatchStats counts what the dispatch loop has seen and started.
type DispatchStats struct {
	Batches atomic.Int64
	Events  atomic.Int64
	Spawned atomic.Int64
	// Drained counts connections accepted by the loop itself in drain mode.
	Drained atomic.Int64
}

// Dispatcher waits for readiness of a listener and starts one worker per
// ready event.
//
// By default each worker accepts exactly one connection. Under edge
// triggering, connections that arrive together may be reported by fewer
// events than connections, and the surplus stays queued until a later
// edge. With Drain set the loop instead accepts until the queue is empty and
// hands every connection to its own worker; Drain requires a non-blocking
// listener.
type Dispatcher struct {
	Monitor   *Monitor
	Listener  *Listener
	Spawner   Spawner
	Progress  *Progress
	Timeout   time.Duration
	MaxEvents int
	Drain     bool

	stats DispatchStats
	total int
}

// Stats returns the live counters.
func (d *Dispatcher) Stats() *DispatchStats { return &d.stats }

// Run loops until ctx is done or the monitor fails. It returns nil on
// cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultWaitTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := d.Monitor.Wait(d.MaxEvents, timeout)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}

		d.stats.Batches.Inc()
		d.stats.Events.Add(int64(len(batch)))
		d.Progress.Printf("parent: %d event(s)", len(batch))

		for _, ev := range batch {
			if ev.Fd != d.Listener.Fd() {
				continue
			}
			if d.Drain {
				err = d.drain()
			} else {
				err = d.spawn(-1)
			}
			if err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) spawn(conn int) error {
	d.total++
	d.Progress.Printf("parent: forking child %d", d.total)
	if err := d.Spawner.Spawn(Job{ID: d.total, Conn: conn}); err != nil {
		return err
	}
	d.stats.Spawned.Inc()
	return nil
}

func (d *Dispatcher) drain() error {
	for {
		fd, err := d.Listener.Accept()
		if err != nil {
			if WouldBlock(err) || TemporaryErr(err) {
				return nil
			}
			return err
		}
		d.stats.Drained.Inc()
		if err := d.spawn(fd); err != nil {
			return err
		}
	}
}
