package qlock

import (
	"fmt"
	"time"

	"github.com/giantswarm/qlock/internal/core"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive(name string, v time.Duration) {
	if v <= 0 {
		panic(fmt.Sprintf("qlock: %s must be greater than 0, got %v", name, v))
	}
}

// WithGC enables the periodic garbage-collection driver at
// DefaultGCInterval. GC refreshes the heartbeat of every registry lock each
// cycle and collects entries whose heartbeat is older than twice the
// interval, so entries orphaned by crashed processes are eventually removed.
//
// Takes effect only when the adapter implements GCAdapter.
func WithGC() Option {
	return func(c *core.LockerConfig) {
		c.GCInterval = DefaultGCInterval
	}
}

// WithGCInterval enables garbage collection at the given interval. A lock
// whose owner crashes is collected after missing two cycles, so the interval
// also bounds how long a dead process can hold a name.
//
// Panics if d <= 0; use the zero-option default (GC disabled) instead of a
// zero interval.
func WithGCInterval(d time.Duration) Option {
	requirePositive("gc interval", d)
	return func(c *core.LockerConfig) {
		c.GCInterval = d
	}
}

// WithGCTimeout bounds a single garbage cycle. The periodic driver runs
// cycles on a background context; the timeout keeps a hung store call from
// blocking every subsequent cycle.
//
// Default: DefaultGCTimeout.
//
// Panics if d <= 0.
func WithGCTimeout(d time.Duration) Option {
	requirePositive("gc timeout", d)
	return func(c *core.LockerConfig) {
		c.GCTimeout = d
	}
}

// WithAcquireTimeout bounds a single acquisition: if the admission rule has
// not let the lock in after d, the lock is rejected with an
// AcquireTimeoutError and its queue entry is withdrawn. Without this option
// an acquisition waits until admission or context cancellation.
//
// Panics if d <= 0.
func WithAcquireTimeout(d time.Duration) LockOption {
	requirePositive("acquire timeout", d)
	return func(o *core.LockOptions) {
		o.AcquireTimeout = d
	}
}

// WithPullInterval sets the sleep between admission polls for a single
// acquisition. Lower values reduce admission latency at the cost of store
// round trips.
//
// Default: DefaultPullInterval.
//
// Panics if d <= 0.
func WithPullInterval(d time.Duration) LockOption {
	requirePositive("pull interval", d)
	return func(o *core.LockOptions) {
		o.PullInterval = d
	}
}
