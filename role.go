// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RunChildRole runs the worker or subordinate body when the process was
// started by ProcessSpawner or StartSubordinateProcess. It reports false for
// an ordinary invocation. Executables call it first thing in main and exit
// with the returned code.
func RunChildRole() (code int, ok bool) {
	switch os.Getenv(envRole) {
	case roleWorker:
		return runWorkerProcess(), true
	case roleClient:
		return runSubordinateProcess(), true
	}
	return 0, false
}

func childStart() time.Time {
	ns, err := strconv.ParseInt(os.Getenv(envStart), 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(0, ns)
}

func runWorkerProcess() int {
	id, err := strconv.Atoi(os.Getenv(envWorkerID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: bad %s: %v\n", envWorkerID, err)
		return 1
	}
	sleep, err := time.ParseDuration(os.Getenv(envWorkerSleep))
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: bad %s: %v\n", envWorkerSleep, err)
		return 1
	}

	w := &Worker{
		Listener: FileListener(childFd, Endpoint{}),
		Sleep:    sleep,
		Progress: NewProgress(os.Stdout, childStart()),
	}
	job := Job{ID: id, Conn: -1}
	if adopted, _ := strconv.ParseBool(os.Getenv(envWorkerConn)); adopted {
		job.Conn = childFd
	}
	if !w.Serve(job) {
		return 1
	}
	return 0
}

func runSubordinateProcess() int {
	ep, err := ResolveEndpoint(os.Getenv(envNetwork), os.Getenv(envTarget))
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}

	cmds := os.NewFile(childFd, "commands")
	replies := os.NewFile(childFd+1, "replies")
	sub := &Subordinate{
		Ch:   &Channel{R: cmds, W: replies},
		Dial: func() (Conn, error) { return Dial(ep) },
	}
	if err := sub.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}
	return 0
}
