// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package edge

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// signalWatcher calls feedback for every subscribed signal it receives.
type signalWatcher struct {
	feedback func(sig os.Signal)
	signalCh chan os.Signal
	exitCh   chan struct{}
	wg       *sync.WaitGroup
}

func newSignalWatcher(cb func(sig os.Signal), sigs ...os.Signal) *signalWatcher {
	sw := &signalWatcher{
		feedback: cb,
		signalCh: make(chan os.Signal, 1),
		exitCh:   make(chan struct{}),
		wg:       &sync.WaitGroup{},
	}
	signal.Notify(sw.signalCh, sigs...)

	sw.wg.Add(1)
	go sw.pollSignal()

	return sw
}

func (sw *signalWatcher) pollSignal() {
	defer sw.wg.Done()
	for {
		select {
		case sig := <-sw.signalCh:
			sw.feedback(sig)
		case <-sw.exitCh:
			return
		}
	}
}

func (sw *signalWatcher) close() {
	signal.Stop(sw.signalCh)
	close(sw.exitCh)
	sw.wg.Wait()
}

// WithShutdownSignals returns a context cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal subscription.
func WithShutdownSignals(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	sw := newSignalWatcher(func(os.Signal) { cancel() }, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		sw.close()
		cancel()
	}
}
