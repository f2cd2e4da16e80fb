// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysSocket creates a blocking stream socket marked close-on-exec.
// Descriptors handed to child processes are passed explicitly.
func sysSocket(family int) (int, error) {
	// See syscall/exec_unix.go for description of ForkLock.
	syscall.ForkLock.RLock()
	s, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err == nil {
		unix.CloseOnExec(s)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, opError("socket", ErrSocketCreate, err)
	}
	return s, nil
}

// sysAccept accepts one connection and marks it close-on-exec.
// ForkLock is not held since accept may block.
func sysAccept(s int) (int, unix.Sockaddr, error) {
	ns, sa, err := unix.Accept(s)
	if err == nil {
		unix.CloseOnExec(ns)
	}
	if err != nil {
		return -1, nil, opError("accept", ErrAccept, err)
	}
	return ns, sa, nil
}
