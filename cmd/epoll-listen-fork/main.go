// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command epoll-listen-fork listens on a socket, waits for connections with
// level- or edge-triggered readiness, and starts a worker for each ready
// event that accepts one connection, sleeps for the given number of seconds
// and exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cheng-zhongliang/edge"
)

func main() {
	if code, ok := edge.RunChildRole(); ok {
		os.Exit(code)
	}

	cfg, err := edge.ParseDispatcherArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := edge.WithShutdownSignals(context.Background())
	defer stop()

	if err := edge.Serve(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
