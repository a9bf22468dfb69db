package qlock

import (
	"log/slog"

	"github.com/giantswarm/qlock/internal/core"
)

// SetLogger replaces the package-level logger used by qlock and its adapter
// packages. The provided logger should already have any desired attributes;
// qlock will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute, re-derived on the next use and then cached. Call
// SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// Thread safety: SetLogger is safe to call concurrently with other qlock
// operations. Both the custom logger and the cached default are stored as
// atomic pointers, so loads and stores are data-race-free. For a strict
// happens-before guarantee, call SetLogger before starting goroutines that
// use the library (e.g., in TestMain before m.Run).
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
