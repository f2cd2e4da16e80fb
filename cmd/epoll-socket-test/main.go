// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command epoll-socket-test scripts connections from a subordinate process
// and prints a warning for every readiness count that differs from the
// expected one. Warnings do not affect the exit status.
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

	cfg, err := edge.ParseHarnessArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := edge.RunHarness(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
