// Package uithread provides the single serialized execution context that owns
// display-surface mutations and capture callbacks.
package uithread

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
)

// ErrClosed is returned when work is submitted after Close
var ErrClosed = errors.New("ui loop closed")

// Loop runs posted functions one at a time on a goroutine locked to a
// single OS thread.
type Loop struct {
	queue chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLoop starts a loop with the given queue depth
func NewLoop(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	l := &Loop{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.wg.Done()

	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		case <-l.done:
			// Drain what was accepted before Close
			for {
				select {
				case fn := <-l.queue:
					l.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("uithread").Error().
				Str("panic", fmt.Sprint(r)).
				Msg("Recovered panic in ui loop task")
		}
	}()
	fn()
}

// Post queues fn for asynchronous execution. It returns false once the loop
// is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return false
	}
	l.queue <- fn
	return true
}

// PostContext is Post that gives up when ctx ends while the queue is full
func (l *Loop) PostContext(ctx context.Context, fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed || ctx.Err() != nil {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run executes fn on the loop and waits for it to finish or for ctx to end.
// A task abandoned through ctx still runs to completion on the loop.
func (l *Loop) Run(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch returns a function suitable as a facility callback executor
func (l *Loop) Dispatch() func(func()) {
	return func(fn func()) {
		if !l.Post(fn) {
			logger.WithComponent("uithread").Debug().Msg("Dropped callback posted after close")
		}
	}
}

// Close stops accepting work, runs what is queued and waits for the loop to exit
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()
}
