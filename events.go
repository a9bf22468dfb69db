package qlock

import "github.com/giantswarm/qlock/internal/core"

// Events are delivered synchronously, in transition order, to every listener
// registered via Locker.Subscribe. Listener panics are recovered and logged;
// they never break a lock operation.
type (
	// Event is the closed set of notifications a Locker emits.
	Event = core.Event

	// AcquiredLock is emitted when a lock settles as Acquired.
	AcquiredLock = core.AcquiredLock

	// RejectedLock is emitted when a lock settles as Rejected. The cause is
	// available via Lock.Reason.
	RejectedLock = core.RejectedLock

	// ReleasedLock is emitted when a lock is released through the Locker.
	ReleasedLock = core.ReleasedLock

	// GarbageCycle is emitted after a successful garbage-collection cycle.
	GarbageCycle = core.GarbageCycle

	// Error is emitted for failures that have no caller to return to:
	// garbage cycle failures and overlapping-cycle skips.
	Error = core.Error
)
