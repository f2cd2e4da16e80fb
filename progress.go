// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress writes lines prefixed with the seconds elapsed since Start.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
}

// NewProgress returns a Progress counting from start.
func NewProgress(w io.Writer, start time.Time) *Progress {
	return &Progress{w: w, start: start}
}

// Start returns the reference time.
func (p *Progress) Start() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.start
}

// Printf writes one "NNN: ..." line.
func (p *Progress) Printf(format string, args ...interface{}) {
	if p == nil || p.w == nil {
		return
	}
	elapsed := int(time.Since(p.start) / time.Second)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%03d: "+format+"\n", append([]interface{}{elapsed}, args...)...)
}
