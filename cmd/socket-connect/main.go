// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command socket-connect connects to a socket a given number of times,
// keeps the connections open until a line is read from stdin, then exits.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/cheng-zhongliang/edge"
)

func main() {
	cfg, err := edge.ParseConnectArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("connecting to %s %s %d times\n", cfg.Endpoint.Network, cfg.Endpoint.Target(), cfg.Count)

	conns := make([]edge.Conn, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		fmt.Println(i + 1)
		conn, err := edge.Dial(cfg.Endpoint)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		conns = append(conns, conn)
	}

	bufio.NewReader(os.Stdin).ReadString('\n')

	for _, conn := range conns {
		conn.Close()
	}
}
