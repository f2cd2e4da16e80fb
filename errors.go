// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrSocketCreate is matched by failures to create a socket.
	ErrSocketCreate = errors.New("socket create failed")
	// ErrBind is matched by failures to bind a socket.
	ErrBind = errors.New("bind failed")
	// ErrListen is matched by failures to enter the listening state.
	ErrListen = errors.New("listen failed")
	// ErrSetNonBlocking is matched by failures to switch the blocking mode.
	ErrSetNonBlocking = errors.New("set non-blocking failed")
	// ErrAccept is matched by accept failures.
	ErrAccept = errors.New("accept failed")
	// ErrClose is matched by failures to close an accepted connection.
	ErrClose = errors.New("close failed")
	// ErrConnect is matched by client connect failures.
	ErrConnect = errors.New("connect failed")
	// ErrMonitorCreate is matched by failures to create the readiness monitor.
	ErrMonitorCreate = errors.New("monitor create failed")
	// ErrRegisterFailed is matched by failures to register, modify or unregister a descriptor.
	ErrRegisterFailed = errors.New("register failed")
	// ErrWaitFailed is matched by failures of the readiness wait.
	ErrWaitFailed = errors.New("wait failed")
	// ErrSpawn is matched by failures to start a worker or subordinate process.
	ErrSpawn = errors.New("spawn failed")
	// ErrPipe is matched by failures on the synchronization pipes.
	ErrPipe = errors.New("pipe failed")

	// ErrAlreadyRegistered is returned when a descriptor is registered twice.
	ErrAlreadyRegistered = errors.New("descriptor already registered")
	// ErrNotRegistered is returned when a descriptor is not registered.
	ErrNotRegistered = errors.New("descriptor not registered")
	// ErrClosed is returned by operations on a closed listener or monitor.
	ErrClosed = errors.New("use of closed descriptor")

	// ErrProtocolViolation is matched by an unexpected byte on the command pipe.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrUsage is matched by bad or missing command line arguments.
	ErrUsage = errors.New("usage")
)

// OpError records the system call that failed and the kind of failure.
type OpError struct {
	// Op is the system call, e.g. "bind" or "epoll_wait".
	Op string
	// Kind is one of the sentinel errors above.
	Kind error
	// Err is the underlying errno.
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *OpError) Is(target error) bool {
	return e.Kind == target
}

func opError(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// ProtocolError is an unexpected byte read from the command pipe.
type ProtocolError struct {
	Got byte
	EOF bool
}

func (e *ProtocolError) Error() string {
	if e.EOF {
		return "protocol violation: command pipe closed"
	}
	return fmt.Sprintf("protocol violation: unexpected byte %q", e.Got)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// UsageError is a command line misuse; Msg is the usage line.
type UsageError struct {
	Msg    string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason == "" {
		return e.Msg
	}
	return e.Reason + "\n" + e.Msg
}

func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

// TemporaryErr checks if an error is temporary such as EAGAIN or EINTR.
func TemporaryErr(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno.Temporary()
}

// WouldBlock reports whether err is EAGAIN on a non-blocking descriptor.
func WouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
