package core

import (
	"fmt"
	"time"
)

// Default values for coordinator and lock options. Exported so callers can
// build custom configurations relative to them.
const (
	// DefaultPullInterval is the sleep between admission polls when a lock
	// does not override it. 25ms keeps admission latency low without
	// hammering the store.
	DefaultPullInterval = 25 * time.Millisecond

	// DefaultGCInterval is the garbage-collection interval used when GC is
	// enabled without an explicit interval. Heartbeats are refreshed every
	// cycle and entries are collected after missing two, so crashed owners
	// hold their names for roughly twice this value.
	DefaultGCInterval = time.Minute

	// DefaultGCTimeout bounds one periodic garbage cycle. The driver runs
	// cycles on a background context; without a bound a hung store call
	// would pin the busy flag forever.
	DefaultGCTimeout = 30 * time.Second
)

// LockerConfig holds the coordinator configuration. Immutable after
// construction.
type LockerConfig struct {
	// GCInterval enables the periodic garbage-collection driver when
	// positive and the adapter implements GCAdapter. Zero disables GC.
	GCInterval time.Duration

	// GCTimeout bounds a single garbage cycle. Defaults to DefaultGCTimeout.
	GCTimeout time.Duration
}

// Validate reports configuration errors. Negative durations are always
// programmer errors; zero values mean "disabled" or "use default".
func (c LockerConfig) Validate() error {
	if c.GCInterval < 0 {
		return fmt.Errorf("gc interval must not be negative, got %v", c.GCInterval)
	}
	if c.GCTimeout < 0 {
		return fmt.Errorf("gc timeout must not be negative, got %v", c.GCTimeout)
	}
	return nil
}

// normalize returns a copy with defaults applied.
func (c LockerConfig) normalize() LockerConfig {
	if c.GCTimeout == 0 {
		c.GCTimeout = DefaultGCTimeout
	}
	return c
}

// LockerOption configures a Locker during construction. The public package
// provides the With* constructors; they validate eagerly and panic on
// invalid values, mirroring regexp.MustCompile.
type LockerOption func(*LockerConfig)

// LockOption configures a single acquisition.
type LockOption func(*LockOptions)

// applyLockOptions folds opts into a normalized LockOptions.
func applyLockOptions(opts []LockOption) LockOptions {
	var o LockOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.normalize()
}
