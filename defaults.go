package qlock

import "github.com/giantswarm/qlock/internal/core"

// Default configuration values. These constants are re-exported so callers
// can build custom configurations relative to them (e.g.,
// 2 * DefaultGCInterval).
const (
	// DefaultPullInterval is the sleep between admission polls when an
	// acquisition does not override it via WithPullInterval.
	DefaultPullInterval = core.DefaultPullInterval

	// DefaultGCInterval is the garbage-collection interval used by WithGC.
	DefaultGCInterval = core.DefaultGCInterval

	// DefaultGCTimeout bounds one garbage cycle unless overridden via
	// WithGCTimeout.
	DefaultGCTimeout = core.DefaultGCTimeout
)
