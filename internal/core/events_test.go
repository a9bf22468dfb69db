package core

import (
	"sync"
	"testing"
	"time"
)

// recorder collects events under a mutex so emitting goroutines and the test
// goroutine can both touch it.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestEmitterDeliversInOrder(t *testing.T) {
	t.Parallel()

	var e emitter
	var rec recorder
	cancel := e.subscribe(rec.record)
	defer cancel()

	l := NewLock("n", Writer, LockOptions{})
	e.emit(AcquiredLock{Lock: l})
	e.emit(ReleasedLock{Lock: l})
	e.emit(GarbageCycle{Collected: 1, Refreshed: 2, Took: time.Millisecond})

	events := rec.snapshot()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if _, ok := events[0].(AcquiredLock); !ok {
		t.Errorf("events[0] = %T, want AcquiredLock", events[0])
	}
	if _, ok := events[1].(ReleasedLock); !ok {
		t.Errorf("events[1] = %T, want ReleasedLock", events[1])
	}
	gc, ok := events[2].(GarbageCycle)
	if !ok {
		t.Fatalf("events[2] = %T, want GarbageCycle", events[2])
	}
	if gc.Collected != 1 || gc.Refreshed != 2 {
		t.Errorf("GarbageCycle = %+v, want Collected=1 Refreshed=2", gc)
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	t.Parallel()

	var e emitter
	var rec recorder
	cancel := e.subscribe(rec.record)

	e.emit(GarbageCycle{})
	cancel()
	e.emit(GarbageCycle{})

	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("got %d events after unsubscribe, want 1", got)
	}
}

func TestEmitterMultipleListeners(t *testing.T) {
	t.Parallel()

	var e emitter
	var a, b recorder
	defer e.subscribe(a.record)()
	defer e.subscribe(b.record)()

	e.emit(GarbageCycle{})

	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Fatalf("listeners got %d and %d events, want 1 each",
			len(a.snapshot()), len(b.snapshot()))
	}
}

func TestEmitterRecoversListenerPanic(t *testing.T) {
	t.Parallel()

	var e emitter
	defer e.subscribe(func(Event) { panic("bad listener") })()
	var rec recorder
	defer e.subscribe(rec.record)()

	// Must not propagate, and must not starve other listeners.
	e.emit(GarbageCycle{})
	e.emit(GarbageCycle{})

	if got := len(rec.snapshot()); got != 2 {
		t.Fatalf("well-behaved listener got %d events, want 2", got)
	}
}

func TestEmitterWithoutListeners(t *testing.T) {
	t.Parallel()

	var e emitter
	e.emit(GarbageCycle{}) // must not panic
}
