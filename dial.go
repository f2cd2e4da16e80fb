// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import "golang.org/x/sys/unix"

// Conn is a raw connected stream socket.
type Conn int

// Close closes the connection.
func (c Conn) Close() error {
	return unix.Close(int(c))
}

// Dial connects a blocking stream socket to ep. Connect returns once the
// connection is established in the peer's pending queue; it does not wait
// for the peer to accept.
func Dial(ep Endpoint) (Conn, error) {
	fd, err := sysSocket(ep.Family())
	if err != nil {
		return -1, err
	}

	if err := unix.Connect(fd, ep.Sockaddr()); err != nil {
		unix.Close(fd)
		return -1, opError("connect", ErrConnect, err)
	}
	return Conn(fd), nil
}
