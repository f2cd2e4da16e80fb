// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import "time"

const (
	// DefaultMaxEvents is the batch capacity used when Wait is given none.
	DefaultMaxEvents = 16
	// DefaultWaitTimeout is the dispatch loop wait timeout.
	DefaultWaitTimeout = 1000 * time.Millisecond
)

// timeoutMillis converts d to an epoll timeout, rounding up so that a
// sub-millisecond timeout does not turn into a poll.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d == 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return int(ms)
}

// CountFd returns how many events in batch belong to fd.
func CountFd(batch []ReadyEvent, fd int) int {
	n := 0
	for _, ev := range batch {
		if ev.Fd == fd {
			n++
		}
	}
	return n
}
