//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"time"

	"golang.org/x/sys/unix"
)

// Monitor is the readiness monitor backed by kqueue.
// Edge-triggered interest maps to EV_CLEAR.
type Monitor struct {
	fd     int
	regs   map[int]uint32
	events []unix.Kevent_t
	batch  []ReadyEvent
}

// NewMonitor creates a new kqueue instance.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, opError("kqueue", ErrMonitorCreate, err)
	}
	unix.CloseOnExec(fd)

	return &Monitor{
		fd:     fd,
		regs:   make(map[int]uint32),
		events: make([]unix.Kevent_t, DefaultMaxEvents),
		batch:  make([]ReadyEvent, 0, DefaultMaxEvents),
	}, nil
}

// Fd returns the kqueue descriptor.
func (m *Monitor) Fd() int { return m.fd }

// Register adds fd with the interest mask events.
func (m *Monitor) Register(fd int, events uint32) error {
	if m.fd < 0 {
		return ErrClosed
	}
	if _, ok := m.regs[fd]; ok {
		return ErrAlreadyRegistered
	}
	if err := m.apply(changes(fd, events, unix.EV_ADD)); err != nil {
		return err
	}
	m.regs[fd] = events
	return nil
}

// Modify replaces the interest mask of a registered fd.
func (m *Monitor) Modify(fd int, events uint32) error {
	if m.fd < 0 {
		return ErrClosed
	}
	old, ok := m.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := m.apply(changes(fd, old, unix.EV_DELETE)); err != nil {
		return err
	}
	if err := m.apply(changes(fd, events, unix.EV_ADD)); err != nil {
		delete(m.regs, fd)
		return err
	}
	m.regs[fd] = events
	return nil
}

// Unregister removes fd from the monitor.
func (m *Monitor) Unregister(fd int) error {
	if m.fd < 0 {
		return ErrClosed
	}
	old, ok := m.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	delete(m.regs, fd)
	return m.apply(changes(fd, old, unix.EV_DELETE))
}

func (m *Monitor) apply(chs []unix.Kevent_t) error {
	if len(chs) == 0 {
		return nil
	}
	_, err := unix.Kevent(m.fd, chs, nil, nil)
	return opError("kevent", ErrRegisterFailed, err)
}

func changes(fd int, events uint32, flags int) []unix.Kevent_t {
	if flags&unix.EV_ADD != 0 && events&EvET != 0 {
		flags |= unix.EV_CLEAR
	}
	var chs []unix.Kevent_t
	if events&(EvRead|EvClosed) != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, fd, unix.EVFILT_READ, flags)
		chs = append(chs, k)
	}
	if events&EvWrite != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, fd, unix.EVFILT_WRITE, flags)
		chs = append(chs, k)
	}
	return chs
}

// Wait waits for at most maxEvents ready descriptors.
// A negative timeout blocks, a zero timeout polls once.
// The returned batch is only valid until the next call.
func (m *Monitor) Wait(maxEvents int, timeout time.Duration) ([]ReadyEvent, error) {
	if m.fd < 0 {
		return nil, ErrClosed
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxEvents > len(m.events) {
		m.events = make([]unix.Kevent_t, maxEvents)
	}

	n, err := unix.Kevent(m.fd, nil, m.events[:maxEvents], timespec(timeout))
	if err != nil {
		if TemporaryErr(err) {
			return m.batch[:0], nil
		}
		return nil, opError("kevent", ErrWaitFailed, err)
	}

	m.batch = m.batch[:0]
	for i := 0; i < n; i++ {
		kev := m.events[i]
		if kev.Flags&unix.EV_ERROR != 0 {
			continue
		}
		events := uint32(0)
		switch kev.Filter {
		case unix.EVFILT_READ:
			events |= EvRead
		case unix.EVFILT_WRITE:
			events |= EvWrite
		}
		if kev.Flags&unix.EV_EOF != 0 {
			events |= EvClosed
		}
		m.batch = append(m.batch, ReadyEvent{Fd: int(kev.Ident), Events: events})
	}
	return m.batch, nil
}

// Close closes the kqueue descriptor.
func (m *Monitor) Close() error {
	if m.fd < 0 {
		return ErrClosed
	}
	fd := m.fd
	m.fd = -1
	m.regs = nil
	return unix.Close(fd)
}

func timespec(d time.Duration) *unix.Timespec {
	if d < 0 {
		return nil
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return &ts
}
