// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// Command is a one-byte message on a synchronization pipe.
type Command byte

const (
	// CmdConnect asks the subordinate to connect once.
	CmdConnect Command = 'c'
	// CmdQuit asks the subordinate to exit.
	CmdQuit Command = 'q'
	// ReplyDone confirms a connect.
	ReplyDone Command = 'd'
	// ReplyQuit confirms a quit.
	ReplyQuit Command = 'r'
)

func (c Command) String() string {
	return string([]byte{byte(c)})
}

// Channel is one side of the two byte pipes between a driver and a
// subordinate: R is the incoming pipe, W the outgoing one.
type Channel struct {
	R io.Reader
	W io.Writer
}

// Send writes one command.
func (ch *Channel) Send(c Command) error {
	if _, err := ch.W.Write([]byte{byte(c)}); err != nil {
		return opError("write_pipe", ErrPipe, err)
	}
	return nil
}

// Recv reads one command. A closed pipe returns io.EOF.
func (ch *Channel) Recv() (Command, error) {
	var b [1]byte
	if _, err := io.ReadFull(ch.R, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, opError("read_pipe", ErrPipe, err)
	}
	return Command(b[0]), nil
}

// Subordinate connects on command and confirms every command it handles.
//
//	Idle --'c'--> Connecting --(connected)--> Idle, reply 'd'
//	Idle --'q'--> Terminated, reply 'r'
//	Idle --other--> Terminated with a protocol violation
type Subordinate struct {
	Ch   *Channel
	Dial func() (Conn, error)

	conns []Conn
}

// Serve runs the state machine until quit. Connections made along the way
// stay open until then so that they remain in the listener's queue.
func (s *Subordinate) Serve() error {
	defer s.closeAll()
	for {
		c, err := s.Ch.Recv()
		if err == io.EOF {
			return &ProtocolError{EOF: true}
		}
		if err != nil {
			return err
		}

		switch c {
		case CmdConnect:
			conn, err := s.Dial()
			if err != nil {
				return err
			}
			s.conns = append(s.conns, conn)
			if err := s.Ch.Send(ReplyDone); err != nil {
				return err
			}
		case CmdQuit:
			return s.Ch.Send(ReplyQuit)
		default:
			return &ProtocolError{Got: byte(c)}
		}
	}
}

// Connections returns the number of connections made so far.
func (s *Subordinate) Connections() int { return len(s.conns) }

func (s *Subordinate) closeAll() {
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// Driver issues commands to a subordinate and returns its replies.
type Driver struct {
	Ch *Channel
}

// Connect sends 'c' and returns the reply.
func (d *Driver) Connect() (Command, error) {
	return d.roundTrip(CmdConnect)
}

// Quit sends 'q' and returns the reply.
func (d *Driver) Quit() (Command, error) {
	return d.roundTrip(CmdQuit)
}

func (d *Driver) roundTrip(c Command) (Command, error) {
	if err := d.Ch.Send(c); err != nil {
		return 0, err
	}
	reply, err := d.Ch.Recv()
	if err == io.EOF {
		return 0, opError("read_pipe", ErrPipe, io.ErrUnexpectedEOF)
	}
	return reply, err
}

// Client is the driver side of a running subordinate.
type Client interface {
	Connect() (Command, error)
	Quit() (Command, error)
	// Wait waits for the subordinate to terminate.
	Wait() error
}

type pipes struct {
	cmdR, cmdW     *os.File
	replyR, replyW *os.File
}

func newPipes() (*pipes, error) {
	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		return nil, opError("pipe", ErrPipe, err)
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		cmdR.Close()
		cmdW.Close()
		return nil, opError("pipe", ErrPipe, err)
	}
	return &pipes{cmdR: cmdR, cmdW: cmdW, replyR: replyR, replyW: replyW}, nil
}

func (p *pipes) driver() *Driver {
	return &Driver{Ch: &Channel{R: p.replyR, W: p.cmdW}}
}

func (p *pipes) subordinate() *Channel {
	return &Channel{R: p.cmdR, W: p.replyW}
}

type pipeClient struct {
	*Driver
	wait func() error
}

func (c *pipeClient) Wait() error { return c.wait() }

// StartSubordinateProcess runs the subordinate in a child process that
// re-executes path (os.Executable() if empty). The child receives the command
// pipe as fd 3 and the reply pipe as fd 4.
func StartSubordinateProcess(ep Endpoint, path string, args ...string) (Client, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, opError("fork", ErrSpawn, err)
		}
		path = exe
	}

	p, err := newPipes()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(),
		envRole+"="+roleClient,
		envNetwork+"="+ep.Network.String(),
		envTarget+"="+ep.Target(),
	)
	cmd.ExtraFiles = []*os.File{p.cmdR, p.replyW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Start()
	p.cmdR.Close()
	p.replyW.Close()
	if err != nil {
		p.cmdW.Close()
		p.replyR.Close()
		return nil, opError("fork", ErrSpawn, err)
	}

	return &pipeClient{
		Driver: p.driver(),
		wait: func() error {
			err := cmd.Wait()
			p.cmdW.Close()
			p.replyR.Close()
			return err
		},
	}, nil
}

// StartSubordinate runs the subordinate in a goroutine of this process.
// Cancelling ctx closes the command pipe, which the subordinate treats as a
// protocol violation.
func StartSubordinate(ctx context.Context, ep Endpoint) (Client, error) {
	p, err := newPipes()
	if err != nil {
		return nil, err
	}

	sub := &Subordinate{
		Ch:   p.subordinate(),
		Dial: func() (Conn, error) { return Dial(ep) },
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		defer p.replyW.Close()
		return sub.Serve()
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			p.cmdW.Close()
		case <-done:
		}
		return nil
	})

	return &pipeClient{
		Driver: p.driver(),
		wait: func() error {
			err := g.Wait()
			p.cmdW.Close()
			p.cmdR.Close()
			p.replyR.Close()
			return err
		},
	}, nil
}

// InlineClient connects from the calling goroutine without a subordinate.
type InlineClient struct {
	Endpoint Endpoint

	conns []Conn
}

// Connect dials once and reports ReplyDone.
func (c *InlineClient) Connect() (Command, error) {
	conn, err := Dial(c.Endpoint)
	if err != nil {
		return 0, err
	}
	c.conns = append(c.conns, conn)
	return ReplyDone, nil
}

// Quit closes every connection and reports ReplyQuit.
func (c *InlineClient) Quit() (Command, error) {
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
	return ReplyQuit, nil
}

// Wait implements Client.
func (c *InlineClient) Wait() error { return nil }
