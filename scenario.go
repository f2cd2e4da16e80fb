// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// StepKind is the action of a scenario step.
type StepKind int

const (
	// StepPoll waits once with a zero timeout and compares the batch size.
	StepPoll StepKind = iota
	// StepConnect asks the client to connect and expects ReplyDone.
	StepConnect
	// StepAccept accepts one pending connection.
	StepAccept
	// StepClose closes the most recently accepted connection.
	StepClose
	// StepQuit asks the client to quit, expects ReplyQuit and waits for it.
	StepQuit
)

// Step is one scripted action.
type Step struct {
	Kind StepKind
	Name string
	// Want is the expected batch size of a poll step.
	Want int
	// ImplDefined marks an expectation the kernel is not bound to meet.
	ImplDefined bool
}

// Poll returns a poll step expecting want events.
func Poll(name string, want int) Step { return Step{Kind: StepPoll, Name: name, Want: want} }

// Connect returns a connect step.
func Connect(name string) Step { return Step{Kind: StepConnect, Name: name} }

// Accept returns an accept step.
func Accept(name string) Step { return Step{Kind: StepAccept, Name: name} }

// CloseAccepted returns a close step.
func CloseAccepted(name string) Step { return Step{Kind: StepClose, Name: name} }

// Quit returns a quit step.
func Quit(name string) Step { return Step{Kind: StepQuit, Name: name} }

// Unsettled marks the step's expectation as implementation-defined.
func (s Step) Unsettled() Step {
	s.ImplDefined = true
	return s
}

// Script is an ordered sequence of steps consumed once.
type Script struct {
	q *queue.Queue
}

// NewScript returns a script of steps.
func NewScript(steps ...Step) *Script {
	sc := &Script{q: queue.New()}
	for _, s := range steps {
		sc.Add(s)
	}
	return sc
}

// Add appends a step.
func (sc *Script) Add(s Step) { sc.q.Add(s) }

// Len returns the number of steps left.
func (sc *Script) Len() int { return sc.q.Length() }

func (sc *Script) next() (Step, bool) {
	if sc.q.Length() == 0 {
		return Step{}, false
	}
	return sc.q.Remove().(Step), true
}

// EdgeScript is the edge-triggered scenario. The first poll after the
// second connect is implementation-defined: Linux reports a fresh event for
// every new connection even though the queue was already non-empty.
func EdgeScript() *Script {
	return NewScript(
		Poll("epoll before connect", 0),
		Connect("client connect 1 confirmation"),
		Poll("epoll 1 after connect 1", 1),
		Poll("epoll 2 after connect 1", 0),
		Connect("client connect 2 confirmation"),
		Poll("epoll 1 after connect 2", 0).Unsettled(),
		Poll("epoll 2 after connect 2", 0),
		Accept("accept"),
		Poll("epoll 3 after accept", 0),
		CloseAccepted("close"),
		Poll("epoll 4 after close", 0),
		Quit("client quit confirmation"),
	)
}

// LevelScript is the same sequence under level triggering: every poll
// reports the listener while a connection is pending.
func LevelScript() *Script {
	return NewScript(
		Poll("epoll before connect", 0),
		Connect("client connect 1 confirmation"),
		Poll("epoll 1 after connect 1", 1),
		Poll("epoll 2 after connect 1", 1),
		Connect("client connect 2 confirmation"),
		Poll("epoll 1 after connect 2", 1),
		Poll("epoll 2 after connect 2", 1),
		Accept("accept"),
		Poll("epoll 3 after accept", 1),
		CloseAccepted("close"),
		Poll("epoll 4 after close", 1),
		Quit("client quit confirmation"),
	)
}

// ScriptFor returns the scenario for trigger t.
func ScriptFor(t Trigger) *Script {
	if t == Edge {
		return EdgeScript()
	}
	return LevelScript()
}

// Observation is the outcome of one checked step.
type Observation struct {
	Name        string
	Want        string
	Got         string
	ImplDefined bool
}

// Match reports whether the expectation held.
func (o Observation) Match() bool { return o.Want == o.Got }

func (o Observation) String() string {
	s := fmt.Sprintf("%s: expected %s, got %s", o.Name, o.Want, o.Got)
	if o.ImplDefined {
		s += " (implementation-defined)"
	}
	return s
}

// Runner plays a script against a listener registered with a monitor.
// Mismatches are printed to Out and execution continues; only system call
// failures stop the run.
type Runner struct {
	Monitor   *Monitor
	Listener  *Listener
	Client    Client
	Out       io.Writer
	MaxEvents int

	accepted []int
	obs      []Observation
}

// Observations returns every checked step so far.
func (r *Runner) Observations() []Observation { return r.obs }

// Mismatches returns the observations whose expectation did not hold.
func (r *Runner) Mismatches() []Observation {
	var out []Observation
	for _, o := range r.obs {
		if !o.Match() {
			out = append(out, o)
		}
	}
	return out
}

// Run executes every step of sc in order.
func (r *Runner) Run(ctx context.Context, sc *Script) error {
	defer r.closeAccepted()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, ok := sc.next()
		if !ok {
			return nil
		}
		if err := r.step(step); err != nil {
			return err
		}
	}
}

func (r *Runner) step(s Step) error {
	switch s.Kind {
	case StepPoll:
		batch, err := r.Monitor.Wait(r.MaxEvents, 0)
		if err != nil {
			return err
		}
		r.expect(s, strconv.Itoa(s.Want), strconv.Itoa(len(batch)))

	case StepConnect:
		reply, err := r.Client.Connect()
		if err != nil {
			return err
		}
		r.expect(s, ReplyDone.String(), reply.String())

	case StepAccept:
		fd, err := r.Listener.Accept()
		if err != nil {
			return err
		}
		r.accepted = append(r.accepted, fd)

	case StepClose:
		if len(r.accepted) == 0 {
			return nil
		}
		fd := r.accepted[len(r.accepted)-1]
		r.accepted = r.accepted[:len(r.accepted)-1]
		if err := unix.Close(fd); err != nil {
			return opError("close", ErrClose, err)
		}

	case StepQuit:
		reply, err := r.Client.Quit()
		if err != nil {
			return err
		}
		r.expect(s, ReplyQuit.String(), reply.String())
		status := "0"
		if err := r.Client.Wait(); err != nil {
			status = err.Error()
		}
		r.expect(Step{Name: "client exit status"}, "0", status)
	}
	return nil
}

func (r *Runner) expect(s Step, want, got string) {
	o := Observation{Name: s.Name, Want: want, Got: got, ImplDefined: s.ImplDefined}
	r.obs = append(r.obs, o)
	if !o.Match() && r.Out != nil {
		fmt.Fprintln(r.Out, o)
	}
}

func (r *Runner) closeAccepted() {
	for _, fd := range r.accepted {
		unix.Close(fd)
	}
	r.accepted = nil
}
