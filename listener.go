// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Backlog is the listen backlog depth.
const Backlog = 1024

// Listener is a listening stream socket. Accept and Close may be called
// from different goroutines.
type Listener struct {
	fd       atomic.Int64
	endpoint Endpoint
	nonblock atomic.Bool
}

// Listen creates a stream socket, binds it to ep and places it in the
// listening state. A stale UNIX-domain socket node at ep.Path is removed
// before binding.
func Listen(ep Endpoint, nonblock bool) (*Listener, error) {
	if ep.Network == Unix {
		if err := os.Remove(ep.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, opError("unlink", ErrBind, err)
		}
	}

	fd, err := sysSocket(ep.Family())
	if err != nil {
		return nil, err
	}

	if err := unix.Bind(fd, ep.Sockaddr()); err != nil {
		unix.Close(fd)
		return nil, opError("bind", ErrBind, err)
	}
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return nil, opError("listen", ErrListen, err)
	}

	ln := newListener(fd, ep)
	if nonblock {
		if err := ln.SetNonblock(true); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return ln, nil
}

// FileListener wraps an inherited listening descriptor.
func FileListener(fd int, ep Endpoint) *Listener {
	return newListener(fd, ep)
}

func newListener(fd int, ep Endpoint) *Listener {
	ln := &Listener{endpoint: ep}
	ln.fd.Store(int64(fd))
	return ln
}

// Fd returns the listening descriptor, or -1 once closed.
func (ln *Listener) Fd() int { return int(ln.fd.Load()) }

// Nonblocking reports whether the listener is in non-blocking mode.
func (ln *Listener) Nonblocking() bool { return ln.nonblock.Load() }

// SetNonblock switches the blocking mode of the listener.
func (ln *Listener) SetNonblock(nonblock bool) error {
	fd := ln.Fd()
	if fd < 0 {
		return ErrClosed
	}
	if err := unix.SetNonblock(fd, nonblock); err != nil {
		return opError("fcntl", ErrSetNonBlocking, err)
	}
	ln.nonblock.Store(nonblock)
	return nil
}

// Endpoint returns the bound endpoint. For inet listeners bound to port 0
// the kernel-assigned port is reported.
func (ln *Listener) Endpoint() Endpoint {
	if fd := ln.Fd(); ln.endpoint.Network == Inet && fd >= 0 {
		if sa, err := unix.Getsockname(fd); err == nil {
			if ep, ok := endpointFromSockaddr(sa); ok {
				return ep
			}
		}
	}
	return ln.endpoint
}

// Accept takes one connection off the pending-connection queue. On a
// non-blocking listener with an empty queue the error satisfies WouldBlock.
func (ln *Listener) Accept() (int, error) {
	s := ln.Fd()
	if s < 0 {
		return -1, ErrClosed
	}
	for {
		fd, _, err := sysAccept(s)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fd, err
	}
}

// File returns a duplicate of the listening descriptor as an *os.File,
// suitable for passing to a child process.
func (ln *Listener) File() (*os.File, error) {
	s := ln.Fd()
	if s < 0 {
		return nil, ErrClosed
	}
	fd, err := unix.Dup(s)
	if err != nil {
		return nil, opError("dup", ErrSpawn, err)
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "listener"), nil
}

// Close closes the listening descriptor. The UNIX-domain socket node is left
// in place and removed by the next Listen on the same path.
func (ln *Listener) Close() error {
	fd := ln.fd.Swap(-1)
	if fd < 0 {
		return ErrClosed
	}
	return unix.Close(int(fd))
}
