package core

import (
	"fmt"
	"time"

	"github.com/giantswarm/qlock/internal/sentinel"
)

// ErrNotInQueue is returned by an adapter's Release when the lock's entry is
// no longer present in the store (double release, or the entry was collected
// by a garbage cycle because its heartbeat went stale).
const ErrNotInQueue = sentinel.Error("lock is not in the queue anymore")

// ErrGCRunning is returned by Locker.GC when a garbage cycle is already in
// progress. The periodic driver emits it as an Error event instead when a
// tick overlaps the previous cycle; operators seeing it repeatedly should
// raise the GC interval.
const ErrGCRunning = sentinel.Error("garbage cycle already running")

// ErrGCUnsupported is returned by Locker.GC when garbage collection is not
// available: either the adapter does not implement GCAdapter or no GC
// interval was configured.
const ErrGCUnsupported = sentinel.Error("garbage collection not enabled")

// WorkflowError reports an illegal lock state transition. The lock's state is
// left unchanged. Transitions outside the documented edge set are programmer
// errors and are never swallowed; the two legal races (acquire vs. timeout,
// admission vs. rejection) are resolved by whoever transitions first, with
// the loser observing a WorkflowError and yielding.
type WorkflowError struct {
	// LockID identifies the lock whose transition was refused.
	LockID string
	// From is the lock's status at the time of the attempt.
	From LockStatus
	// To is the refused target status.
	To LockStatus
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	return fmt.Sprintf("illegal transition of lock %s from %s to %s", e.LockID, e.From, e.To)
}

// AcquireTimeoutError is the rejection reason recorded on a lock whose
// acquire timeout fired before the admission rule let it in. It is an
// expected outcome, not a failure of the coordinator.
type AcquireTimeoutError struct {
	// Name is the lock name that timed out.
	Name string
	// Timeout is the configured acquire timeout that elapsed.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("lock on %q not acquired within %s", e.Name, e.Timeout)
}

// LockError wraps a failure tied to a specific lock, typically an adapter
// error during acquire or release. The underlying cause is available via
// errors.Unwrap / errors.Is / errors.As.
type LockError struct {
	// Lock is the lock the failure is attached to.
	Lock *Lock
	// Op names the failed operation ("acquire", "release").
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LockError) Error() string {
	return fmt.Sprintf("%s lock %s on %q: %v", e.Op, e.Lock.ID(), e.Lock.Name(), e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *LockError) Unwrap() error {
	return e.Err
}
