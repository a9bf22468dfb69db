package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time capability checks.
var (
	_ Adapter   = (*MemoryAdapter)(nil)
	_ GCAdapter = (*MemoryAdapter)(nil)
)

// memoryEntry is one queue slot: the waiting (or holding) lock and its
// heartbeat, refreshed by GC while the owner is alive.
type memoryEntry struct {
	lock      *Lock
	heartbeat time.Time
}

// MemoryAdapter coordinates locks within a single process: a map from name to
// an ordered queue of entries, insertion order defining FIFO admission. It is
// the reference implementation of the admission rule — distributed adapters
// must agree with it — and the workhorse of the test suite.
//
// It intentionally implements GCAdapter (so registry/heartbeat semantics can
// be exercised hermetically) but not SetupAdapter: there is nothing to set up.
type MemoryAdapter struct {
	mu     sync.Mutex
	queues map[string][]memoryEntry
}

// NewMemoryAdapter creates an empty in-process adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{queues: make(map[string][]memoryEntry)}
}

// Acquire appends the lock to its name's queue and polls the admission rule
// at the lock's pull interval until the lock is Acquired or leaves Acquiring.
// Context cancellation aborts the wait with the context error; the entry is
// removed on every non-acquisition exit.
func (a *MemoryAdapter) Acquire(ctx context.Context, l *Lock) error {
	a.mu.Lock()
	a.queues[l.Name()] = append(a.queues[l.Name()], memoryEntry{lock: l, heartbeat: l.CreatedAt()})
	a.mu.Unlock()

	interval := l.Options().PullInterval
	for {
		if a.tryAdmit(l) {
			return nil
		}
		if !l.IsAcquiring() {
			// Settled elsewhere (timeout, rejection) — withdraw the entry.
			a.removeEntry(l.ID())
			return nil
		}
		select {
		case <-ctx.Done():
			a.removeEntry(l.ID())
			return fmt.Errorf("waiting for admission: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

// tryAdmit evaluates the admission rule under the queue mutex and, when the
// rule admits the lock, transitions it to Acquired. A false return means
// either "not admitted yet" or "lock settled first" — the caller
// distinguishes via the lock status.
func (a *MemoryAdapter) tryAdmit(l *Lock) bool {
	a.mu.Lock()
	admitted := admitted(a.queues[l.Name()], l)
	a.mu.Unlock()

	if !admitted {
		return false
	}
	// The acquire-timeout may have rejected the lock between the scan and
	// here; the state machine arbitrates and the rejection wins.
	return l.ToAcquired() == nil
}

// admitted applies the FIFO admission rule to the queue:
//
//   - a Writer is admitted iff it is the head of the queue;
//   - a Reader is admitted iff no Writer precedes it.
func admitted(queue []memoryEntry, l *Lock) bool {
	for i, e := range queue {
		if e.lock.ID() == l.ID() {
			return l.Type() == Reader || i == 0
		}
		if e.lock.Type() == Writer {
			return false
		}
	}
	return false
}

// removeEntry drops the entry with the given lock id, reporting whether it
// was present. Empty queues are deleted so the map does not accumulate names.
func (a *MemoryAdapter) removeEntry(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, queue := range a.queues {
		for i, e := range queue {
			if e.lock.ID() == id {
				queue = append(queue[:i], queue[i+1:]...)
				if len(queue) == 0 {
					delete(a.queues, name)
				} else {
					a.queues[name] = queue
				}
				return true
			}
		}
	}
	return false
}

// Release removes the lock's entry and transitions it to Released. Returns
// ErrNotInQueue when the entry is already gone.
func (a *MemoryAdapter) Release(_ context.Context, l *Lock) error {
	if !a.removeEntry(l.ID()) {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), ErrNotInQueue)
	}
	return l.ToReleased()
}

// ReleaseAll drops every queue.
func (a *MemoryAdapter) ReleaseAll(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.queues)
	return nil
}

// GC collects entries whose heartbeat predates req.StaleAt and refreshes the
// heartbeat of every registry lock to req.At.
func (a *MemoryAdapter) GC(_ context.Context, req GCRequest) (GCStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var stats GCStats
	for name, queue := range a.queues {
		kept := queue[:0]
		for _, e := range queue {
			if e.heartbeat.Before(req.StaleAt) {
				stats.Collected++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(a.queues, name)
		} else {
			a.queues[name] = kept
		}
	}

	for _, l := range req.Registry.Snapshot() {
		queue := a.queues[l.Name()]
		for i, e := range queue {
			if e.lock.ID() == l.ID() {
				queue[i].heartbeat = req.At
				stats.Refreshed++
				break
			}
		}
	}

	return stats, nil
}
