package core

import (
	"context"
	"time"
)

// Adapter is the store protocol behind a Locker. Implementations coordinate
// admission through a shared medium: the in-memory adapter through a map (the
// semantic oracle for tests), the mongodb adapter through a per-name queue
// document, the sqlite adapter through a shared database file.
//
// All operations honor context cancellation on store round-trips.
type Adapter interface {
	// Acquire enqueues the lock and blocks until it reaches Acquired, or
	// returns without acquiring once the lock leaves Acquiring (acquire
	// timeout, rejection). On success the adapter has transitioned the lock
	// to Acquired; on a non-acquisition exit the adapter has removed the
	// store entry best-effort and returns nil. A failure to enqueue or a
	// store failure during polling is returned as an error.
	Acquire(ctx context.Context, l *Lock) error

	// Release removes the lock's store presence and transitions it to
	// Released. Fails with ErrNotInQueue when the entry is no longer
	// present (double release, collected by GC).
	Release(ctx context.Context, l *Lock) error

	// ReleaseAll drops every entry the adapter owns. Lock state machines of
	// outstanding locks are not advanced; the coordinator clears its
	// registry after a successful ReleaseAll.
	ReleaseAll(ctx context.Context) error
}

// SetupAdapter is implemented by adapters that need one-time initialization
// (collections, tables, indexes). Setup must be idempotent; the coordinator
// additionally memoizes the first success and single-flights concurrent calls.
type SetupAdapter interface {
	Setup(ctx context.Context, cfg SetupConfig) error
}

// SetupConfig carries the coordinator configuration relevant to Setup.
type SetupConfig struct {
	// GCInterval is the configured garbage-collection interval, or zero
	// when GC is disabled. Adapters use it to size any TTL machinery their
	// GC relies on.
	GCInterval time.Duration
}

// GCAdapter is implemented by adapters that support garbage collection of
// stale queue entries. One cycle refreshes the heartbeat of every lock in the
// registry and collects entries whose heartbeat predates StaleAt.
type GCAdapter interface {
	GC(ctx context.Context, req GCRequest) (GCStats, error)
}

// GCRequest describes one garbage cycle.
type GCRequest struct {
	// Registry holds the locks whose heartbeats must be refreshed.
	Registry *Registry
	// Interval is the configured GC interval.
	Interval time.Duration
	// At is the cycle timestamp; refreshed heartbeats are raised to it.
	At time.Time
	// StaleAt is the collection cutoff: At − 2·Interval. Entries with an
	// older heartbeat belong to owners that missed two consecutive cycles
	// and are presumed dead.
	StaleAt time.Time
}

// GCStats is the outcome of one garbage cycle.
type GCStats struct {
	// Collected is the number of store mutations that removed stale entries.
	Collected int
	// Refreshed is the number of heartbeats actually advanced.
	Refreshed int
}
