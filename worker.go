// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Job is one unit of work handed to a worker.
type Job struct {
	// ID is the worker number, counted from 1.
	ID int
	// Conn is an already accepted connection, or -1 if the worker must
	// accept one itself.
	Conn int
}

// Spawner starts an isolated worker for a job. Spawn must not wait for the
// worker to finish.
type Spawner interface {
	Spawn(job Job) error
}

// WorkerStats counts worker lifecycle transitions. Process workers are
// counted by their parent: a child that exits 0 has accepted.
type WorkerStats struct {
	Started  atomic.Int64
	Accepted atomic.Int64
	Failed   atomic.Int64
	Exited   atomic.Int64
}

// Worker accepts or adopts one connection, holds it for Sleep and exits.
type Worker struct {
	Listener *Listener
	Sleep    time.Duration
	Progress *Progress
	Stats    *WorkerStats
}

// Serve runs the worker body for job and reports whether it accepted a
// connection. An accept failure ends this worker only.
func (w *Worker) Serve(job Job) bool {
	w.Progress.Printf("child %d (pid %d): started", job.ID, os.Getpid())
	if w.Stats != nil {
		w.Stats.Started.Inc()
	}

	conn := job.Conn
	if conn < 0 {
		fd, err := w.Listener.Accept()
		if err != nil {
			w.Progress.Printf("child %d: %v", job.ID, err)
			if w.Stats != nil {
				w.Stats.Failed.Inc()
			}
			return false
		}
		conn = fd
	}
	defer unix.Close(conn)

	w.Progress.Printf("child %d: accepted", job.ID)
	if w.Stats != nil {
		w.Stats.Accepted.Inc()
	}

	time.Sleep(w.Sleep)

	w.Progress.Printf("child %d: exiting", job.ID)
	if w.Stats != nil {
		w.Stats.Exited.Inc()
	}
	return true
}

// GoroutineSpawner runs each worker in its own goroutine. Nothing needs to
// be reaped.
type GoroutineSpawner struct {
	Worker *Worker
}

// Spawn implements Spawner.
func (s *GoroutineSpawner) Spawn(job Job) error {
	go s.Worker.Serve(job)
	return nil
}

// Environment variables understood by RunChildRole.
const (
	envRole        = "EDGE_ROLE"
	envWorkerID    = "EDGE_WORKER_ID"
	envWorkerSleep = "EDGE_WORKER_SLEEP"
	envWorkerConn  = "EDGE_WORKER_CONN"
	envStart       = "EDGE_START"
	envNetwork     = "EDGE_NETWORK"
	envTarget      = "EDGE_TARGET"

	roleWorker = "worker"
	roleClient = "client"

	// childFd is the first descriptor passed through ExtraFiles.
	childFd = 3
)

// ProcessSpawner runs each worker in a child process that re-executes Path.
// The child inherits the listener, or the accepted connection, as fd 3 and
// must call RunChildRole early in main. Children are reaped asynchronously.
type ProcessSpawner struct {
	// Path is the executable; os.Executable() if empty.
	Path string
	// Args are passed after the program name.
	Args     []string
	Env      []string
	Listener *Listener
	Sleep    time.Duration
	Progress *Progress
	Stdout   *os.File
	Stderr   *os.File
	Stats    *WorkerStats
	// Reaped receives the exit error of each child, if not nil.
	Reaped chan<- error

	running atomic.Int64
}

// Running returns the number of children not yet reaped.
func (s *ProcessSpawner) Running() int64 { return s.running.Load() }

// Spawn implements Spawner. An adopted job.Conn is closed in this process
// whether or not the child starts.
func (s *ProcessSpawner) Spawn(job Job) error {
	var f *os.File
	if job.Conn >= 0 {
		f = os.NewFile(uintptr(job.Conn), "conn")
	} else {
		lf, err := s.Listener.File()
		if err != nil {
			return err
		}
		f = lf
	}
	defer f.Close()

	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return opError("fork", ErrSpawn, err)
		}
		path = exe
	}

	start := s.Progress.Start()
	if start.IsZero() {
		start = time.Now()
	}

	cmd := exec.Command(path, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env,
		envRole+"="+roleWorker,
		envWorkerID+"="+strconv.Itoa(job.ID),
		envWorkerSleep+"="+s.Sleep.String(),
		envWorkerConn+"="+strconv.FormatBool(job.Conn >= 0),
		envStart+"="+strconv.FormatInt(start.UnixNano(), 10),
	)
	cmd.ExtraFiles = []*os.File{f}
	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}
	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}

	if err := cmd.Start(); err != nil {
		return opError("fork", ErrSpawn, err)
	}
	s.running.Inc()
	if s.Stats != nil {
		s.Stats.Started.Inc()
	}

	go func() {
		err := cmd.Wait()
		s.running.Dec()
		if s.Stats != nil {
			if err != nil {
				s.Stats.Failed.Inc()
			} else {
				s.Stats.Accepted.Inc()
				s.Stats.Exited.Inc()
			}
		}
		if s.Reaped != nil {
			s.Reaped <- err
		}
	}()
	return nil
}
