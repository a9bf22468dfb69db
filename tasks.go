package qlock

import (
	"context"

	"github.com/giantswarm/qlock/internal/core"
)

// RunWithReaderLock acquires a shared lock on name, runs task, releases the
// lock, and returns the task's result. The release runs even when task
// errors or panics, and even when ctx is canceled mid-task (the release uses
// a context detached from ctx's cancellation so a canceled task cannot leak
// its queue entry).
//
// These are top-level generic functions rather than Locker methods because
// Go methods cannot introduce type parameters.
func RunWithReaderLock[T any](
	ctx context.Context,
	lk *Locker,
	name string,
	task func(context.Context) (T, error),
	opts ...LockOption,
) (T, error) {
	return runWithLock(ctx, lk, name, Reader, task, opts)
}

// RunWithWriterLock acquires an exclusive lock on name, runs task, releases
// the lock, and returns the task's result. See RunWithReaderLock for the
// release guarantees.
func RunWithWriterLock[T any](
	ctx context.Context,
	lk *Locker,
	name string,
	task func(context.Context) (T, error),
	opts ...LockOption,
) (T, error) {
	return runWithLock(ctx, lk, name, Writer, task, opts)
}

func runWithLock[T any](
	ctx context.Context,
	lk *Locker,
	name string,
	typ LockType,
	task func(context.Context) (T, error),
	opts []LockOption,
) (T, error) {
	var zero T

	var l *Lock
	var err error
	switch typ {
	case Writer:
		l, err = lk.LockAsWriter(ctx, name, opts...)
	default:
		l, err = lk.LockAsReader(ctx, name, opts...)
	}
	if err != nil {
		return zero, err
	}

	defer func() {
		if rerr := lk.Release(context.WithoutCancel(ctx), l); rerr != nil {
			core.Logger().Warn("failed to release task lock",
				"lock", l.ID(), "name", name, "error", rerr)
		}
	}()

	return task(ctx)
}
