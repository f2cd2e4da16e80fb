// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/cheng-zhongliang/edge"
)

func TestParseDispatcherArgs(t *testing.T) {
	cfg, err := ParseDispatcherArgs([]string{"inet", "9000", "et", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != InetEndpoint(Any, 9000) {
		t.Fatalf("endpoint %v", cfg.Endpoint)
	}
	if cfg.Trigger != Edge || cfg.Sleep != 3*time.Second {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.Workers != "process" || cfg.Drain || cfg.Timeout != DefaultWaitTimeout || cfg.MaxEvents != DefaultMaxEvents {
		t.Fatalf("defaults %+v", cfg)
	}

	cfg, err = ParseDispatcherArgs([]string{"-workers", "goroutine", "-drain", "unix", "/tmp/t.sock", "lt", "0"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != UnixEndpoint("/tmp/t.sock") || cfg.Trigger != Level || !cfg.Drain || cfg.Workers != "goroutine" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestParseDispatcherArgsUsage(t *testing.T) {
	bad := [][]string{
		nil,
		{"unix", "/tmp/t.sock", "et"},
		{"unix", "/tmp/t.sock", "et", "1", "extra"},
		{"sctp", "1", "et", "1"},
		{"inet", "port", "et", "1"},
		{"inet", "80", "xt", "1"},
		{"inet", "80", "et", "soon"},
		{"-workers", "thread", "inet", "80", "et", "1"},
		{"-nope", "inet", "80", "et", "1"},
	}
	for _, args := range bad {
		_, err := ParseDispatcherArgs(args)
		if !errors.Is(err, ErrUsage) {
			t.Fatalf("%q: got %v", args, err)
		}
		if !strings.Contains(err.Error(), DispatcherUsage) {
			t.Fatalf("%q: usage missing from %q", args, err)
		}
	}
}

func TestParseHarnessArgs(t *testing.T) {
	cfg, err := ParseHarnessArgs([]string{"unix", "/tmp/t.sock"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != UnixEndpoint("/tmp/t.sock") || cfg.Trigger != Edge || cfg.Client != "process" {
		t.Fatalf("got %+v", cfg)
	}

	cfg, err = ParseHarnessArgs([]string{"-mode", "lt", "-client", "inline", "inet", "7000"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != InetEndpoint(Loopback, 7000) || cfg.Trigger != Level || cfg.Client != "inline" {
		t.Fatalf("got %+v", cfg)
	}

	for _, args := range [][]string{
		{"unix"},
		{"-mode", "both", "unix", "/tmp/t.sock"},
		{"-client", "thread", "unix", "/tmp/t.sock"},
	} {
		if _, err := ParseHarnessArgs(args); !errors.Is(err, ErrUsage) {
			t.Fatalf("%q: got %v", args, err)
		}
	}
}

func TestParseConnectArgs(t *testing.T) {
	cfg, err := ParseConnectArgs([]string{"inet", "7000", "4"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != InetEndpoint(Loopback, 7000) || cfg.Count != 4 {
		t.Fatalf("got %+v", cfg)
	}
	if _, err := ParseConnectArgs([]string{"inet", "7000", "-4"}); !errors.Is(err, ErrUsage) {
		t.Fatalf("got %v", err)
	}
}
