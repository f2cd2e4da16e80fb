// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"context"
	"io"
	"os"
	"time"
)

// Serve runs the dispatcher described by cfg until ctx is done. Progress
// lines go to stdout; process workers inherit stdout and stderr. A summary
// of the worker counters is printed when the loop stops.
func Serve(ctx context.Context, cfg DispatcherConfig, stdout, stderr *os.File) error {
	ln, err := Listen(cfg.Endpoint, cfg.Drain)
	if err != nil {
		return err
	}
	defer ln.Close()

	mon, err := NewMonitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	if err := mon.Register(ln.Fd(), cfg.Trigger.Events()); err != nil {
		return err
	}

	progress := NewProgress(stdout, time.Now())
	stats := &WorkerStats{}

	var spawner Spawner
	switch cfg.Workers {
	case "goroutine":
		spawner = &GoroutineSpawner{Worker: &Worker{
			Listener: ln,
			Sleep:    cfg.Sleep,
			Progress: progress,
			Stats:    stats,
		}}
	default:
		spawner = &ProcessSpawner{
			Listener: ln,
			Sleep:    cfg.Sleep,
			Progress: progress,
			Stdout:   stdout,
			Stderr:   stderr,
			Stats:    stats,
		}
	}

	d := &Dispatcher{
		Monitor:   mon,
		Listener:  ln,
		Spawner:   spawner,
		Progress:  progress,
		Timeout:   cfg.Timeout,
		MaxEvents: cfg.MaxEvents,
		Drain:     cfg.Drain,
	}
	err = d.Run(ctx)
	progress.Printf("parent: %d event(s), %d worker(s) started, %d accepted, %d failed",
		d.Stats().Events.Load(), stats.Started.Load(), stats.Accepted.Load(), stats.Failed.Load())
	return err
}

// RunHarness plays the scripted scenario for cfg.Trigger and returns the
// observations. Mismatches are printed to out. The subordinate is started
// before the listener exists and only connects when told to.
func RunHarness(ctx context.Context, cfg HarnessConfig, out io.Writer, args ...string) ([]Observation, error) {
	var client Client
	var err error
	switch cfg.Client {
	case "goroutine":
		client, err = StartSubordinate(ctx, cfg.Endpoint)
	case "inline":
		client = &InlineClient{Endpoint: cfg.Endpoint}
	default:
		client, err = StartSubordinateProcess(cfg.Endpoint, "", args...)
	}
	if err != nil {
		return nil, err
	}

	ln, err := Listen(cfg.Endpoint, false)
	if err != nil {
		client.Quit()
		client.Wait()
		return nil, err
	}
	defer ln.Close()

	mon, err := NewMonitor()
	if err != nil {
		client.Quit()
		client.Wait()
		return nil, err
	}
	defer mon.Close()

	if err := mon.Register(ln.Fd(), cfg.Trigger.Events()); err != nil {
		client.Quit()
		client.Wait()
		return nil, err
	}

	r := &Runner{
		Monitor:   mon,
		Listener:  ln,
		Client:    client,
		Out:       out,
		MaxEvents: cfg.MaxEvents,
	}
	if err := r.Run(ctx, ScriptFor(cfg.Trigger)); err != nil {
		client.Quit()
		client.Wait()
		return r.Observations(), err
	}
	return r.Observations(), nil
}
