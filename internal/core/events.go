package core

import (
	"sync"
	"time"
)

// Event is the closed set of notifications a Locker emits. Events are
// delivered synchronously, in the order the underlying state transitions
// occur, to every subscribed listener.
type Event interface {
	event()
}

// AcquiredLock is emitted when a lock settles as Acquired.
type AcquiredLock struct {
	Lock *Lock
}

// RejectedLock is emitted when a lock settles as Rejected (timeout,
// cancellation, adapter failure). The cause is available via Lock.Reason.
type RejectedLock struct {
	Lock *Lock
}

// ReleasedLock is emitted when a lock is released through the coordinator.
type ReleasedLock struct {
	Lock *Lock
}

// GarbageCycle is emitted after a successful garbage-collection cycle.
type GarbageCycle struct {
	// Collected is the number of store mutations that removed stale entries.
	Collected int
	// Refreshed is the number of heartbeats advanced for registry locks.
	Refreshed int
	// Took is the wall-clock duration of the cycle.
	Took time.Duration
}

// Error is emitted for failures that have no caller to return to: garbage
// cycle failures and overlapping-cycle skips. The driver keeps running.
type Error struct {
	Err error
}

func (AcquiredLock) event() {}
func (RejectedLock) event() {}
func (ReleasedLock) event() {}
func (GarbageCycle) event() {}
func (Error) event()        {}

// emitter is a minimal multi-listener bus. Listener panics are recovered and
// logged so one bad listener can never break a lock operation; delivery is
// synchronous so event order matches transition order.
type emitter struct {
	mu        sync.RWMutex
	nextToken int
	listeners map[int]func(Event)
}

// subscribe registers fn and returns a cancel func that detaches it.
func (e *emitter) subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(Event))
	}
	token := e.nextToken
	e.nextToken++
	e.listeners[token] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, token)
	}
}

// emit delivers ev to every listener. Listeners run on the emitting
// goroutine; a subscribe/unsubscribe during delivery takes effect on the
// next emit (delivery iterates a snapshot).
func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	fns := make([]func(Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, ev)
	}
}

// deliver invokes one listener, recovering panics.
func deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Warn("event listener panicked", "panic", r)
		}
	}()
	fn(ev)
}
