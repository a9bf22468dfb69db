package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Locker coordinates lock acquisition and release for one process: it owns
// the registry of live locks, arms acquire timeouts, drives the periodic
// garbage collector and emits lifecycle events. It is safe for concurrent
// use by multiple goroutines.
//
// Synchronization strategy:
//   - registry has its own mutex; the Locker never holds two locks at once.
//   - setupDone is an atomic fast path; setupGroup single-flights the slow
//     path so concurrent Setup callers share one adapter call.
//   - the GC driver is guarded by gcStarted (CAS starts exactly one loop)
//     and gcBusy (at most one cycle in flight, manual or periodic).
type Locker struct {
	adapter  Adapter
	cfg      LockerConfig
	registry *Registry
	events   emitter

	setupGroup singleflight.Group
	setupDone  atomic.Bool

	gcStarted atomic.Bool
	gcBusy    atomic.Bool
	gcClosed  atomic.Bool
	gcStop    chan struct{}
}

// NewLocker creates a Locker bound to the given adapter.
//
// Panics if adapter is nil or the folded configuration fails validation.
// Invalid configuration is a programmer error that should be caught at
// construction time, similar to regexp.MustCompile.
func NewLocker(adapter Adapter, opts ...LockerOption) *Locker {
	if adapter == nil {
		panic("qlock: adapter must not be nil")
	}
	var cfg LockerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("qlock: invalid locker config: %v", err))
	}
	return &Locker{
		adapter:  adapter,
		cfg:      cfg.normalize(),
		registry: NewRegistry(),
		gcStop:   make(chan struct{}),
	}
}

// Registry returns the process-local registry of live locks.
func (lk *Locker) Registry() *Registry {
	return lk.registry
}

// Subscribe registers a listener for lifecycle events and returns a cancel
// func that detaches it. Listeners run synchronously on the emitting
// goroutine; panics are recovered and logged, never propagated.
func (lk *Locker) Subscribe(fn func(Event)) func() {
	return lk.events.subscribe(fn)
}

// Setup initializes the adapter's store structures (collections, tables,
// indexes). It is idempotent and concurrency-safe: the first success is
// memoized and concurrent callers share a single in-flight adapter call.
// Adapters without setup needs make this a no-op.
func (lk *Locker) Setup(ctx context.Context) error {
	if lk.setupDone.Load() {
		return nil
	}
	_, err, _ := lk.setupGroup.Do("setup", func() (any, error) {
		if lk.setupDone.Load() {
			return nil, nil
		}
		if sa, ok := lk.adapter.(SetupAdapter); ok {
			if err := sa.Setup(ctx, SetupConfig{GCInterval: lk.cfg.GCInterval}); err != nil {
				return nil, fmt.Errorf("setup adapter: %w", err)
			}
		}
		lk.setupDone.Store(true)
		return nil, nil
	})
	return err
}

// LockAsReader acquires a shared lock on name. It blocks until the lock is
// admitted, the configured acquire timeout fires, or ctx is canceled. On
// success the returned lock is Acquired and tracked in the registry; on
// failure the returned error is the rejection reason (AcquireTimeoutError on
// timeout, a LockError wrapping the cause otherwise).
func (lk *Locker) LockAsReader(ctx context.Context, name string, opts ...LockOption) (*Lock, error) {
	return lk.lock(ctx, name, Reader, opts)
}

// LockAsWriter acquires an exclusive lock on name. See LockAsReader for the
// blocking and error contract.
func (lk *Locker) LockAsWriter(ctx context.Context, name string, opts ...LockOption) (*Lock, error) {
	return lk.lock(ctx, name, Writer, opts)
}

func (lk *Locker) lock(ctx context.Context, name string, typ LockType, opts []LockOption) (*Lock, error) {
	if name == "" {
		return nil, fmt.Errorf("lock name must not be empty")
	}

	l := NewLock(name, typ, applyLockOptions(opts))
	lk.registry.Add(l)
	lk.maybeStartGC()

	// Arm the acquire timeout. The timer and the adapter's admission check
	// race on the Acquiring state; the state machine arbitrates, so a
	// rejection that loses to admission is silently dropped (and vice
	// versa). The adapter's poll loop observes the settled state and exits.
	var timer *time.Timer
	if d := l.Options().AcquireTimeout; d > 0 {
		timer = time.AfterFunc(d, func() {
			_ = l.Reject(&AcquireTimeoutError{Name: name, Timeout: d})
		})
	}

	err := lk.adapter.Acquire(ctx, l)
	if timer != nil {
		timer.Stop()
	}

	if err != nil {
		_ = l.Reject(err)
		lk.registry.Remove(l)
		lk.events.emit(RejectedLock{Lock: l})
		return nil, &LockError{Lock: l, Op: "acquire", Err: err}
	}

	if l.IsAcquired() {
		lk.events.emit(AcquiredLock{Lock: l})
		return l, nil
	}

	// The adapter returned without acquiring: the lock was rejected while
	// polling (acquire timeout, external rejection) or its entry vanished.
	reason := l.Reason()
	if reason == nil {
		reason = fmt.Errorf("lock %s on %q left %s without settling", l.ID(), name, StatusAcquiring)
		_ = l.Reject(reason)
	}
	lk.registry.Remove(l)
	lk.events.emit(RejectedLock{Lock: l})
	return nil, reason
}

// Release releases a lock previously returned by LockAsReader/LockAsWriter.
// It is idempotent: releasing a lock that is already Releasing, already
// Released, or unknown to the registry is a no-op. The lock is always removed
// from the registry once release begins, even if the adapter fails.
func (lk *Locker) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	if l.Status() == StatusReleasing || !lk.registry.Has(l) {
		return nil
	}
	if l.Status() == StatusReleased {
		lk.registry.Remove(l)
		return nil
	}

	if err := l.ToReleasing(); err != nil {
		// A concurrent Release may win the Acquired→Releasing edge between
		// the idempotency check above and here; the loser observes the lock
		// already Releasing (or Released) and honors the no-op contract.
		// Releasing an Acquiring lock stays a state-machine violation
		// (cancel it via its acquire timeout instead) and is surfaced.
		var wfErr *WorkflowError
		if errors.As(err, &wfErr) &&
			(wfErr.From == StatusReleasing || wfErr.From == StatusReleased) {
			return nil
		}
		return err
	}
	defer lk.registry.Remove(l)

	if err := lk.adapter.Release(ctx, l); err != nil {
		return &LockError{Lock: l, Op: "release", Err: err}
	}
	lk.events.emit(ReleasedLock{Lock: l})
	return nil
}

// ReleaseMany releases the given locks concurrently and returns the first
// error encountered, if any. Individual releases keep their idempotency.
func (lk *Locker) ReleaseMany(ctx context.Context, locks []*Lock) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range locks {
		g.Go(func() error {
			return lk.Release(ctx, l)
		})
	}
	return g.Wait()
}

// ReleaseAll drops every entry the adapter owns and clears the registry.
// Outstanding Lock values are not transitioned; they become orphans whose
// store entries are gone.
func (lk *Locker) ReleaseAll(ctx context.Context) error {
	if err := lk.adapter.ReleaseAll(ctx); err != nil {
		return fmt.Errorf("release all: %w", err)
	}
	lk.registry.Clear()
	return nil
}

// Close stops the garbage-collection driver. It does not release any locks;
// call ReleaseAll first when tearing down a process that still holds locks.
// Safe to call multiple times.
func (lk *Locker) Close() {
	if lk.gcClosed.CompareAndSwap(false, true) {
		close(lk.gcStop)
	}
}
