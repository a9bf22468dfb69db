// Package qlock provides a distributed readers–writer lock coordinated
// through a shared store. Multiple independent processes request named locks
// as Readers (shared) or Writers (exclusive); admission is first-in-first-out
// per name, computed client-side from an ordered queue kept in the store.
// Locks are advisory: every participant must go through the lock service.
//
// # Basic Usage
//
//	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(uri))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	locker := qlock.New(
//	    mongodb.New(client, "coordination"),
//	    qlock.WithGCInterval(30*time.Second),
//	)
//	defer locker.Close()
//
//	if err := locker.Setup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	lock, err := locker.LockAsWriter(ctx, "migrations",
//	    qlock.WithAcquireTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err) // e.g. *qlock.AcquireTimeoutError
//	}
//	defer locker.Release(ctx, lock)
//
// # Task Scoping
//
// RunWithReaderLock and RunWithWriterLock bracket a task with acquire and
// release:
//
//	n, err := qlock.RunWithWriterLock(ctx, locker, "counter",
//	    func(ctx context.Context) (int, error) {
//	        return bumpCounter(ctx)
//	    })
//
// # Adapters
//
// The store protocol is pluggable. qlock.NewMemoryAdapter coordinates within
// one process; the mongodb subpackage coordinates a fleet through a document
// collection; the sqlite subpackage coordinates processes sharing one host
// through a database file.
//
// # Liveness
//
// A process that crashes while holding locks leaves orphaned queue entries.
// With garbage collection enabled (WithGC / WithGCInterval), every live lock's
// heartbeat is refreshed each cycle and entries that miss two cycles are
// collected, so orphans unblock waiters after roughly twice the interval.
package qlock
