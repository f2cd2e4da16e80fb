// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"fmt"
	"strings"
)

const (
	// EvRead is readable interest. A listening socket is readable while its
	// pending-connection queue is non-empty.
	EvRead = 1 << iota
	// EvWrite is writable interest.
	EvWrite
	// EvClosed is peer-closed interest.
	EvClosed
	// EvError is reported for error or hang-up conditions. It is never registered.
	EvError

	// EvET is the edge-triggered behavior flag.
	EvET = 0x20
)

// Trigger selects how readiness is reported.
type Trigger int

const (
	// Level reports a descriptor on every wait while the condition holds.
	Level Trigger = iota
	// Edge reports a descriptor only when the condition changes.
	Edge
)

// ParseTrigger parses "lt" or "et".
func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "lt":
		return Level, nil
	case "et":
		return Edge, nil
	}
	return Level, fmt.Errorf("unknown trigger mode %q", s)
}

// Events returns the interest mask for readable interest under t.
func (t Trigger) Events() uint32 {
	if t == Edge {
		return EvRead | EvET
	}
	return EvRead
}

func (t Trigger) String() string {
	if t == Edge {
		return "et"
	}
	return "lt"
}

// ReadyEvent is a descriptor reported by one wait call.
type ReadyEvent struct {
	// Fd is the ready file descriptor.
	Fd int
	// Events is the subset of EvRead, EvWrite, EvClosed and EvError that fired.
	Events uint32
}

func (ev ReadyEvent) String() string {
	var what []string
	if ev.Events&EvRead != 0 {
		what = append(what, "read")
	}
	if ev.Events&EvWrite != 0 {
		what = append(what, "write")
	}
	if ev.Events&EvClosed != 0 {
		what = append(what, "closed")
	}
	if ev.Events&EvError != 0 {
		what = append(what, "error")
	}
	return fmt.Sprintf("fd %d [%s]", ev.Fd, strings.Join(what, "|"))
}
