// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Usage lines of the executables.
const (
	DispatcherUsage = "Usage: epoll-listen-fork [-workers process|goroutine] [-drain] [unix|inet] [path|port] [et|lt] sleep"
	HarnessUsage    = "Usage: epoll-socket-test [-mode et|lt] [-client process|goroutine|inline] [unix|inet] [path|port]"
	ConnectUsage    = "Usage: socket-connect [unix|inet] [path|port] count"
)

// DispatcherConfig configures epoll-listen-fork.
type DispatcherConfig struct {
	Endpoint Endpoint
	Trigger  Trigger
	Sleep    time.Duration
	// Workers is "process" or "goroutine".
	Workers   string
	Drain     bool
	Timeout   time.Duration
	MaxEvents int
}

// HarnessConfig configures epoll-socket-test.
type HarnessConfig struct {
	Endpoint Endpoint
	Trigger  Trigger
	// Client is "process", "goroutine" or "inline".
	Client    string
	MaxEvents int
}

// ConnectConfig configures socket-connect.
type ConnectConfig struct {
	Endpoint Endpoint
	Count    int
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func usageError(msg string, format string, args ...interface{}) error {
	return &UsageError{Msg: msg, Reason: fmt.Sprintf(format, args...)}
}

// ParseDispatcherArgs parses the arguments after the program name.
// Inet dispatchers listen on every local address.
func ParseDispatcherArgs(args []string) (DispatcherConfig, error) {
	cfg := DispatcherConfig{Timeout: DefaultWaitTimeout, MaxEvents: DefaultMaxEvents}

	fs := newFlagSet("epoll-listen-fork")
	fs.StringVar(&cfg.Workers, "workers", "process", "worker isolation: process or goroutine")
	fs.BoolVar(&cfg.Drain, "drain", false, "accept until the queue is empty on every event")
	fs.DurationVar(&cfg.Timeout, "timeout", DefaultWaitTimeout, "wait timeout")
	fs.IntVar(&cfg.MaxEvents, "max-events", DefaultMaxEvents, "events per wait")
	if err := fs.Parse(args); err != nil {
		return cfg, usageError(DispatcherUsage, "%v", err)
	}
	if cfg.Workers != "process" && cfg.Workers != "goroutine" {
		return cfg, usageError(DispatcherUsage, "unknown worker mode %q", cfg.Workers)
	}

	pos := fs.Args()
	if len(pos) != 4 {
		return cfg, usageError(DispatcherUsage, "")
	}

	ep, err := ResolveEndpoint(pos[0], pos[1])
	if err != nil {
		return cfg, usageError(DispatcherUsage, "%v", err)
	}
	cfg.Endpoint = ep.Wildcard()

	if cfg.Trigger, err = ParseTrigger(pos[2]); err != nil {
		return cfg, usageError(DispatcherUsage, "%v", err)
	}

	secs, err := strconv.Atoi(pos[3])
	if err != nil || secs < 0 {
		return cfg, usageError(DispatcherUsage, "bad sleep %q", pos[3])
	}
	cfg.Sleep = time.Duration(secs) * time.Second
	return cfg, nil
}

// ParseHarnessArgs parses the arguments after the program name.
func ParseHarnessArgs(args []string) (HarnessConfig, error) {
	cfg := HarnessConfig{MaxEvents: DefaultMaxEvents}

	var mode string
	fs := newFlagSet("epoll-socket-test")
	fs.StringVar(&mode, "mode", "et", "trigger mode: et or lt")
	fs.StringVar(&cfg.Client, "client", "process", "subordinate placement: process, goroutine or inline")
	if err := fs.Parse(args); err != nil {
		return cfg, usageError(HarnessUsage, "%v", err)
	}

	var err error
	if cfg.Trigger, err = ParseTrigger(mode); err != nil {
		return cfg, usageError(HarnessUsage, "%v", err)
	}
	switch cfg.Client {
	case "process", "goroutine", "inline":
	default:
		return cfg, usageError(HarnessUsage, "unknown client mode %q", cfg.Client)
	}

	pos := fs.Args()
	if len(pos) != 2 {
		return cfg, usageError(HarnessUsage, "")
	}
	if cfg.Endpoint, err = ResolveEndpoint(pos[0], pos[1]); err != nil {
		return cfg, usageError(HarnessUsage, "%v", err)
	}
	return cfg, nil
}

// ParseConnectArgs parses the arguments after the program name.
func ParseConnectArgs(args []string) (ConnectConfig, error) {
	var cfg ConnectConfig
	if len(args) != 3 {
		return cfg, usageError(ConnectUsage, "")
	}

	var err error
	if cfg.Endpoint, err = ResolveEndpoint(args[0], args[1]); err != nil {
		return cfg, usageError(ConnectUsage, "%v", err)
	}
	if cfg.Count, err = strconv.Atoi(args[2]); err != nil || cfg.Count < 0 {
		return cfg, usageError(ConnectUsage, "bad count %q", args[2])
	}
	return cfg, nil
}
