package qlock

import (
	"github.com/giantswarm/qlock/internal/core"
)

// Core types are exposed as aliases (not named types) so that the adapter
// subpackages (mongodb, sqlite) and this package share identical types: an
// adapter built against internal/core satisfies the Adapter alias here
// without any wrapping.
type (
	// Locker coordinates lock acquisition and release for one process. See
	// New for construction and the method docs on core.Locker for the full
	// contract.
	Locker = core.Locker

	// Lock is one requested lock instance: identity, parameters, lifecycle
	// state and timing telemetry.
	Lock = core.Lock

	// Registry is the process-local set of locks currently tracked by a
	// Locker.
	Registry = core.Registry

	// LockType is the mode a lock is requested in (Writer or Reader).
	LockType = core.LockType

	// LockStatus is the lifecycle state of a lock.
	LockStatus = core.LockStatus

	// LockOptions carries the per-acquisition knobs. Usually built through
	// WithAcquireTimeout and WithPullInterval rather than directly.
	LockOptions = core.LockOptions

	// Adapter is the store protocol behind a Locker.
	Adapter = core.Adapter

	// SetupAdapter is implemented by adapters that need one-time store
	// initialization.
	SetupAdapter = core.SetupAdapter

	// GCAdapter is implemented by adapters that support garbage collection
	// of stale queue entries.
	GCAdapter = core.GCAdapter

	// SetupConfig carries the coordinator configuration relevant to Setup.
	SetupConfig = core.SetupConfig

	// GCRequest describes one garbage cycle.
	GCRequest = core.GCRequest

	// GCStats is the outcome of one garbage cycle.
	GCStats = core.GCStats

	// MemoryAdapter coordinates locks within a single process. It doubles
	// as the reference implementation of the admission rule.
	MemoryAdapter = core.MemoryAdapter

	// Option configures a Locker during construction.
	Option = core.LockerOption

	// LockOption configures a single acquisition.
	LockOption = core.LockOption
)

// Lock modes.
const (
	// Writer requests exclusive access: mutually exclusive with every other
	// lock on the same name.
	Writer = core.Writer

	// Reader requests shared access: any number of Readers may hold a name
	// as long as no Writer does.
	Reader = core.Reader
)

// Lock lifecycle states. See the state machine documented on LockStatus.
const (
	StatusAcquiring = core.StatusAcquiring
	StatusAcquired  = core.StatusAcquired
	StatusReleasing = core.StatusReleasing
	StatusReleased  = core.StatusReleased
	StatusRejected  = core.StatusRejected
)

// New creates a Locker bound to the given adapter. Without options the
// Locker runs with garbage collection disabled; enable it with WithGC or
// WithGCInterval (the adapter must implement GCAdapter for either to take
// effect).
//
// Panics if adapter is nil or an option carries an invalid value. Invalid
// configuration is a programmer error caught at construction time, similar
// to regexp.MustCompile.
func New(adapter Adapter, opts ...Option) *Locker {
	return core.NewLocker(adapter, opts...)
}

// NewMemoryAdapter creates an in-process adapter: single-process
// coordination, tests, and a semantic oracle for the distributed adapters.
func NewMemoryAdapter() *MemoryAdapter {
	return core.NewMemoryAdapter()
}
