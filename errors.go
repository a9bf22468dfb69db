package qlock

import "github.com/giantswarm/qlock/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrNotInQueue is returned by an adapter's Release when the lock's
	// entry is no longer present in the store: a double release, or the
	// entry was collected by a garbage cycle after its heartbeat went
	// stale. The Locker's own Release never surfaces it for locks it does
	// not track — idempotency is handled at the coordinator layer.
	ErrNotInQueue = core.ErrNotInQueue

	// ErrGCRunning is returned by Locker.GC when a garbage cycle is already
	// in progress; the periodic driver emits it as an Error event instead.
	ErrGCRunning = core.ErrGCRunning

	// ErrGCUnsupported is returned by Locker.GC when garbage collection is
	// not enabled for this Locker/adapter combination.
	ErrGCUnsupported = core.ErrGCUnsupported
)

type (
	// WorkflowError reports an illegal lock state transition; the lock's
	// state is left unchanged. Match with errors.As.
	WorkflowError = core.WorkflowError

	// AcquireTimeoutError is the rejection reason of an acquisition whose
	// acquire timeout fired before admission. Match with errors.As.
	AcquireTimeoutError = core.AcquireTimeoutError

	// LockError wraps a failure tied to a specific lock, typically an
	// adapter failure during acquire or release. The cause is available
	// via errors.Unwrap.
	LockError = core.LockError
)
