package core

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// LockType is the mode a lock is requested in: shared (Reader) or exclusive
// (Writer). Any number of Readers may hold a name concurrently; a Writer
// excludes both Readers and other Writers on that name.
type LockType int

const (
	// Writer requests exclusive access to the name.
	Writer LockType = iota
	// Reader requests shared access to the name.
	Reader
)

// IsValid reports whether t is a recognized LockType value.
func (t LockType) IsValid() bool {
	switch t {
	case Writer, Reader:
		return true
	default:
		return false
	}
}

// String returns the wire name of the type. Adapters persist this value in
// queue entries, so it must stay stable across versions.
func (t LockType) String() string {
	switch t {
	case Writer:
		return "writer"
	case Reader:
		return "reader"
	default:
		return fmt.Sprintf("LockType(%d)", int(t))
	}
}

// LockStatus is the lifecycle state of a lock. A lock is created Acquiring
// and settles into Acquired or Rejected; an Acquired lock moves through
// Releasing (or directly) to Released.
type LockStatus int

const (
	// StatusAcquiring means the lock is enqueued and waiting for admission.
	StatusAcquiring LockStatus = iota
	// StatusAcquired means the admission rule let the lock in; the caller
	// holds it until release.
	StatusAcquired
	// StatusReleasing means release has started but the store entry may
	// still exist.
	StatusReleasing
	// StatusReleased means the store entry is gone and the lock is terminal.
	StatusReleased
	// StatusRejected means the lock never reached Acquired (timeout,
	// cancellation, adapter failure). Terminal; Reason carries the cause.
	StatusRejected
)

// IsValid reports whether s is a recognized LockStatus value.
func (s LockStatus) IsValid() bool {
	switch s {
	case StatusAcquiring, StatusAcquired, StatusReleasing, StatusReleased, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the name of the status.
func (s LockStatus) String() string {
	switch s {
	case StatusAcquiring:
		return "Acquiring"
	case StatusAcquired:
		return "Acquired"
	case StatusReleasing:
		return "Releasing"
	case StatusReleased:
		return "Released"
	case StatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("LockStatus(%d)", int(s))
	}
}

// LockOptions carries the per-acquisition knobs. The zero value is completed
// by normalize: PullInterval falls back to DefaultPullInterval, AcquireTimeout
// zero means no timeout.
type LockOptions struct {
	// AcquireTimeout bounds how long an acquisition may stay Acquiring
	// before it is rejected with an AcquireTimeoutError. Zero disables the
	// timeout.
	AcquireTimeout time.Duration

	// PullInterval is the sleep between admission polls against the store.
	PullInterval time.Duration
}

// Validate checks the options for nonsense values. AcquireTimeout may be zero
// (disabled) but never negative; PullInterval must be positive once
// normalized.
func (o LockOptions) Validate() error {
	if o.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative, got %v", o.AcquireTimeout)
	}
	if o.PullInterval < 0 {
		return fmt.Errorf("pull interval must not be negative, got %v", o.PullInterval)
	}
	return nil
}

// normalize returns a copy with defaults applied.
func (o LockOptions) normalize() LockOptions {
	if o.PullInterval == 0 {
		o.PullInterval = DefaultPullInterval
	}
	return o
}

// legalTransitions is the exact edge set of the lock lifecycle. Anything
// absent here fails with a WorkflowError and leaves the state unchanged.
//
//	Acquiring ─► Acquired ─► Releasing ─► Released
//	    │             └────────────────────►┘
//	    └─► Rejected
var legalTransitions = map[LockStatus][]LockStatus{
	StatusAcquiring: {StatusAcquired, StatusRejected},
	StatusAcquired:  {StatusReleasing, StatusReleased},
	StatusReleasing: {StatusReleased},
}

// Lock is one requested lock instance: identity, parameters, lifecycle state
// and timing telemetry. Identity (id, name, type, options, createdAt) is
// immutable after construction; lifecycle state (status, settledAt,
// releasedAt, reason) is guarded by mu.
//
// The state machine is the arbiter for the two legal races: the adapter's
// admission check and the acquire-timeout both target the Acquiring state,
// and whichever transitions first wins. The loser receives a WorkflowError
// and must yield without side effects.
type Lock struct {
	id   string
	name string
	typ  LockType
	opts LockOptions

	createdAt time.Time

	mu         sync.Mutex
	status     LockStatus
	settledAt  time.Time
	releasedAt time.Time
	reason     error

	// log is the lock-scoped logger.
	log *slog.Logger
}

// genID generates a random 16-character hex ID. IDs need process-wide
// uniqueness for registry and store keying, not cryptographic strength.
func genID() string {
	return fmt.Sprintf("%016x", rand.Uint64()) //nolint:gosec // G404: see above
}

// NewLock creates a lock in the Acquiring state with createdAt stamped.
// Panics if name is empty, typ is invalid, or opts fail validation; the
// coordinator validates caller input before reaching here, so a panic
// indicates a programmer error.
func NewLock(name string, typ LockType, opts LockOptions) *Lock {
	if name == "" {
		panic("qlock: lock name must not be empty")
	}
	if !typ.IsValid() {
		panic(fmt.Sprintf("qlock: invalid lock type: %v", typ))
	}
	if err := opts.Validate(); err != nil {
		panic(fmt.Sprintf("qlock: invalid lock options: %v", err))
	}
	id := genID()
	return &Lock{
		id:        id,
		name:      name,
		typ:       typ,
		opts:      opts.normalize(),
		createdAt: time.Now(),
		status:    StatusAcquiring,
		log:       Logger().With("lock", id, "name", name, "type", typ.String()),
	}
}

// ID returns the process-unique lock identifier.
func (l *Lock) ID() string { return l.id }

// Name returns the coordination key the lock was requested on.
func (l *Lock) Name() string { return l.name }

// Type returns the lock mode.
func (l *Lock) Type() LockType { return l.typ }

// Options returns the normalized per-acquisition options.
func (l *Lock) Options() LockOptions { return l.opts }

// CreatedAt returns the construction timestamp.
func (l *Lock) CreatedAt() time.Time { return l.createdAt }

// Status returns the current lifecycle state.
func (l *Lock) Status() LockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// IsAcquiring reports whether the lock is still waiting for admission.
func (l *Lock) IsAcquiring() bool { return l.Status() == StatusAcquiring }

// IsAcquired reports whether the lock is currently held.
func (l *Lock) IsAcquired() bool { return l.Status() == StatusAcquired }

// IsReleased reports whether the lock reached the Released terminal state.
func (l *Lock) IsReleased() bool { return l.Status() == StatusReleased }

// IsRejected reports whether the lock reached the Rejected terminal state.
func (l *Lock) IsRejected() bool { return l.Status() == StatusRejected }

// SettledAt returns the time the lock reached Acquired or Rejected, or the
// zero time if it has not settled yet.
func (l *Lock) SettledAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settledAt
}

// ReleasedAt returns the time the lock reached Released, or the zero time.
func (l *Lock) ReleasedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releasedAt
}

// SettledIn returns how long the lock took to settle (settledAt − createdAt)
// and whether it has settled.
func (l *Lock) SettledIn() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settledAt.IsZero() {
		return 0, false
	}
	return l.settledAt.Sub(l.createdAt), true
}

// AcquiredFor returns how long the lock was held (releasedAt − settledAt)
// and whether it has been released.
func (l *Lock) AcquiredFor() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.releasedAt.IsZero() {
		return 0, false
	}
	return l.releasedAt.Sub(l.settledAt), true
}

// Reason returns the rejection cause. Non-nil only after Reject.
func (l *Lock) Reason() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// transition moves the lock to the target state, stamping telemetry on the
// way. Callers must hold l.mu.
func (l *Lock) transition(to LockStatus) error {
	allowed := false
	for _, s := range legalTransitions[l.status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return &WorkflowError{LockID: l.id, From: l.status, To: to}
	}

	switch to {
	case StatusAcquired, StatusRejected:
		l.settledAt = time.Now()
	case StatusReleased:
		if l.settledAt.IsZero() {
			// Unreachable via the legal edge set: Released is only
			// reachable from Acquired/Releasing, both of which imply a
			// settle stamp. A zero settledAt here means direct field
			// manipulation, which is a programmer error.
			panic("qlock: lock released without settling: " + l.id)
		}
		l.releasedAt = time.Now()
	case StatusAcquiring, StatusReleasing:
		// No telemetry on these edges.
	}

	l.status = to
	return nil
}

// ToAcquired settles the lock as held. Legal only from Acquiring; the adapter
// calls this when the admission rule lets the lock in.
func (l *Lock) ToAcquired() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transition(StatusAcquired); err != nil {
		return err
	}
	l.log.Debug("lock acquired", "settled_in", l.settledAt.Sub(l.createdAt))
	return nil
}

// ToReleasing marks release as started. Legal only from Acquired.
func (l *Lock) ToReleasing() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(StatusReleasing)
}

// ToReleased marks the lock terminal after its store entry is gone. Legal
// from Acquired or Releasing.
func (l *Lock) ToReleased() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transition(StatusReleased); err != nil {
		return err
	}
	l.log.Debug("lock released", "acquired_for", l.releasedAt.Sub(l.settledAt))
	return nil
}

// Reject records the failure cause and settles the lock as Rejected. Legal
// only from Acquiring. Used by the acquire-timeout timer, by context
// cancellation, and by the coordinator on adapter failure; a WorkflowError
// return means the lock settled first and the rejection must be dropped.
func (l *Lock) Reject(reason error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transition(StatusRejected); err != nil {
		return err
	}
	l.reason = reason
	l.log.Debug("lock rejected", "reason", reason)
	return nil
}
