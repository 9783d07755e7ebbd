// Package loop runs tasks one at a time on a single goroutine.
//
// Signaling handlers, PeerLink transitions and media changes of one call
// session are all posted here so that no two of them ever run in parallel.
package loop

import (
	"context"
	"sync"
)

// Poster schedules a task on a loop. Loop.Post satisfies it.
type Poster func(fn func()) bool

type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func New(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post schedules fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be used
// from a task already running on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return context.Canceled
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) stop() {
	l.once.Do(func() { close(l.done) })
}
