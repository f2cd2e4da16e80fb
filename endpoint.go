// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// Network is the address family of an Endpoint.
type Network int

const (
	// Unix is a UNIX-domain stream endpoint.
	Unix Network = iota
	// Inet is an IPv4 stream endpoint.
	Inet
)

// ParseNetwork parses "unix" or "inet".
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "unix":
		return Unix, nil
	case "inet":
		return Inet, nil
	}
	return Unix, fmt.Errorf("unknown network %q", s)
}

func (n Network) String() string {
	if n == Inet {
		return "inet"
	}
	return "unix"
}

var (
	// Loopback is 127.0.0.1.
	Loopback = [4]byte{127, 0, 0, 1}
	// Any is 0.0.0.0.
	Any = [4]byte{0, 0, 0, 0}
)

// Endpoint is an immutable stream socket address: a UNIX-domain path or an
// IPv4 address and port.
type Endpoint struct {
	Network Network
	Path    string
	Addr    [4]byte
	Port    uint16
}

// UnixEndpoint returns a UNIX-domain endpoint for path.
func UnixEndpoint(path string) Endpoint {
	return Endpoint{Network: Unix, Path: path}
}

// InetEndpoint returns an IPv4 endpoint.
func InetEndpoint(addr [4]byte, port uint16) Endpoint {
	return Endpoint{Network: Inet, Addr: addr, Port: port}
}

// ResolveEndpoint builds an endpoint from a network name and a path or port.
// Inet endpoints resolve to the loopback address; see Wildcard.
func ResolveEndpoint(network, target string) (Endpoint, error) {
	nw, err := ParseNetwork(network)
	if err != nil {
		return Endpoint{}, err
	}

	if nw == Unix {
		if target == "" {
			return Endpoint{}, fmt.Errorf("empty socket path")
		}
		// sun_path holds at most 107 bytes plus the terminator.
		if len(target) > 107 {
			return Endpoint{}, fmt.Errorf("socket path too long: %d bytes", len(target))
		}
		return UnixEndpoint(target), nil
	}

	port, err := strconv.ParseUint(target, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("bad port %q", target)
	}
	return InetEndpoint(Loopback, uint16(port)), nil
}

// Wildcard returns e bound to every local address. UNIX-domain endpoints are
// returned unchanged.
func (e Endpoint) Wildcard() Endpoint {
	if e.Network == Inet {
		e.Addr = Any
	}
	return e
}

// Family returns the socket address family.
func (e Endpoint) Family() int {
	if e.Network == Inet {
		return unix.AF_INET
	}
	return unix.AF_UNIX
}

// Sockaddr returns the endpoint as a socket address.
func (e Endpoint) Sockaddr() unix.Sockaddr {
	if e.Network == Inet {
		return &unix.SockaddrInet4{Port: int(e.Port), Addr: e.Addr}
	}
	return &unix.SockaddrUnix{Name: e.Path}
}

// Target returns the path or port as given on the command line.
func (e Endpoint) Target() string {
	if e.Network == Inet {
		return strconv.Itoa(int(e.Port))
	}
	return e.Path
}

func (e Endpoint) String() string {
	if e.Network == Inet {
		return fmt.Sprintf("inet %d.%d.%d.%d:%d", e.Addr[0], e.Addr[1], e.Addr[2], e.Addr[3], e.Port)
	}
	return "unix " + e.Path
}

func endpointFromSockaddr(sa unix.Sockaddr) (Endpoint, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return InetEndpoint(sa.Addr, uint16(sa.Port)), true
	case *unix.SockaddrUnix:
		return UnixEndpoint(sa.Name), true
	}
	return Endpoint{}, false
}
