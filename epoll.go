// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package edge

import (
	"time"

	"golang.org/x/sys/unix"
)

const maxUint32 = 0xFFFFFFFF

// Monitor is the readiness monitor backed by epoll.
type Monitor struct {
	fd     int
	regs   map[int]uint32
	events []unix.EpollEvent
	batch  []ReadyEvent
}

// NewMonitor creates a new epoll instance.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, opError("epoll_create1", ErrMonitorCreate, err)
	}

	return &Monitor{
		fd:     fd,
		regs:   make(map[int]uint32),
		events: make([]unix.EpollEvent, DefaultMaxEvents),
		batch:  make([]ReadyEvent, 0, DefaultMaxEvents),
	}, nil
}

// Fd returns the epoll descriptor.
func (m *Monitor) Fd() int { return m.fd }

// Register adds fd with the interest mask events.
func (m *Monitor) Register(fd int, events uint32) error {
	if m.fd < 0 {
		return ErrClosed
	}
	if _, ok := m.regs[fd]; ok {
		return ErrAlreadyRegistered
	}
	if err := m.ctl(unix.EPOLL_CTL_ADD, fd, events); err != nil {
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
	if _, ok := m.regs[fd]; !ok {
		return ErrNotRegistered
	}
	if err := m.ctl(unix.EPOLL_CTL_MOD, fd, events); err != nil {
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
	if _, ok := m.regs[fd]; !ok {
		return ErrNotRegistered
	}
	delete(m.regs, fd)
	return opError("epoll_ctl", ErrRegisterFailed, unix.EpollCtl(m.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

func (m *Monitor) ctl(op int, fd int, events uint32) error {
	epEv := &unix.EpollEvent{Fd: int32(fd), Events: toEpollEvents(events)}
	return opError("epoll_ctl", ErrRegisterFailed, unix.EpollCtl(m.fd, op, fd, epEv))
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
		m.events = make([]unix.EpollEvent, maxEvents)
	}

	n, err := unix.EpollWait(m.fd, m.events[:maxEvents], timeoutMillis(timeout))
	if err != nil {
		if TemporaryErr(err) {
			return m.batch[:0], nil
		}
		return nil, opError("epoll_wait", ErrWaitFailed, err)
	}

	m.batch = m.batch[:0]
	for i := 0; i < n; i++ {
		m.batch = append(m.batch, ReadyEvent{
			Fd:     int(m.events[i].Fd),
			Events: fromEpollEvents(m.events[i].Events),
		})
	}
	return m.batch, nil
}

// Close closes the epoll descriptor. Registered descriptors are left open.
func (m *Monitor) Close() error {
	if m.fd < 0 {
		return ErrClosed
	}
	fd := m.fd
	m.fd = -1
	m.regs = nil
	return unix.Close(fd)
}

func toEpollEvents(events uint32) uint32 {
	epEvents := uint32(0)
	if events&EvRead != 0 {
		epEvents |= unix.EPOLLIN
	}
	if events&EvWrite != 0 {
		epEvents |= unix.EPOLLOUT
	}
	if events&EvClosed != 0 {
		epEvents |= unix.EPOLLRDHUP
	}
	if epEvents != 0 && events&EvET != 0 {
		// see go issue 832
		epEvents |= unix.EPOLLET & maxUint32
	}
	return epEvents
}

func fromEpollEvents(epEvents uint32) uint32 {
	events := uint32(0)
	if epEvents&unix.EPOLLIN != 0 {
		events |= EvRead
	}
	if epEvents&unix.EPOLLOUT != 0 {
		events |= EvWrite
	}
	if epEvents&unix.EPOLLRDHUP != 0 {
		events |= EvClosed
	}
	if epEvents&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		events |= EvError
	}
	return events
}
