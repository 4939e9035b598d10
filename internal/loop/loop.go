// Package loop provides a single-goroutine confinement context: closures
// submitted to a Loop run one at a time, in submission order, on the loop's
// own goroutine.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned for work submitted to a stopped loop.
var ErrStopped = errors.New("loop stopped")

// Loop serialises access to state owned by one engine.
type Loop struct {
	ops  chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// New starts a loop with a submission queue of the given depth.
func New(queue int) *Loop {
	l := &Loop{
		ops:  make(chan func(), queue),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case op := <-l.ops:
			op()
		case <-l.quit:
			return
		}
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from inside a closure already running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.ops <- op:
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have run op just before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues fn without waiting for it.
func (l *Loop) Go(fn func()) error {
	select {
	case l.ops <- fn:
		return nil
	case <-l.quit:
		return ErrStopped
	}
}

// Stop ends the loop after the closure currently running, if any. Queued
// closures that have not started are dropped. Safe to call more than once.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
