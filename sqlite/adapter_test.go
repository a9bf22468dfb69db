package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/qlock/internal/core"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	a, err := New(filepath.Join(t.TempDir(), "locks.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	if err := a.Setup(context.Background(), core.SetupConfig{}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return a
}

func newTestLock(t *testing.T, name string, typ core.LockType) *core.Lock {
	t.Helper()
	return core.NewLock(name, typ, core.LockOptions{PullInterval: 2 * time.Millisecond})
}

func TestSetupIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	if err := a.Setup(context.Background(), core.SetupConfig{}); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
}

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	l := newTestLock(t, "jobs", core.Writer)
	if err := a.Acquire(ctx, l); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !l.IsAcquired() {
		t.Fatalf("status = %v, want Acquired", l.Status())
	}

	if err := a.Release(ctx, l); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !l.IsReleased() {
		t.Fatalf("status = %v, want Released", l.Status())
	}

	queue, err := a.fetchQueue(ctx, "jobs")
	if err != nil {
		t.Fatalf("fetchQueue: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("queue has %d entries after release, want 0", len(queue))
	}
}

func TestReadersShareAName(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	r1 := newTestLock(t, "config", core.Reader)
	r2 := newTestLock(t, "config", core.Reader)
	if err := a.Acquire(ctx, r1); err != nil {
		t.Fatalf("Acquire r1: %v", err)
	}
	if err := a.Acquire(ctx, r2); err != nil {
		t.Fatalf("Acquire r2: %v", err)
	}
	if !r1.IsAcquired() || !r2.IsAcquired() {
		t.Fatalf("statuses = %v, %v, want both Acquired", r1.Status(), r2.Status())
	}
}

func TestWriterWaitsForHolder(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	holder := newTestLock(t, "jobs", core.Writer)
	if err := a.Acquire(ctx, holder); err != nil {
		t.Fatalf("Acquire holder: %v", err)
	}

	waiter := newTestLock(t, "jobs", core.Writer)
	done := make(chan error, 1)
	go func() {
		done <- a.Acquire(ctx, waiter)
	}()

	time.Sleep(30 * time.Millisecond)
	if !waiter.IsAcquiring() {
		t.Fatalf("waiter status = %v before release, want Acquiring", waiter.Status())
	}

	if err := a.Release(ctx, holder); err != nil {
		t.Fatalf("Release holder: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire waiter: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not admitted after release")
	}
	if !waiter.IsAcquired() {
		t.Fatalf("waiter status = %v, want Acquired", waiter.Status())
	}
}

func TestAcquireStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	holder := newTestLock(t, "jobs", core.Writer)
	if err := a.Acquire(ctx, holder); err != nil {
		t.Fatalf("Acquire holder: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	waiter := newTestLock(t, "jobs", core.Writer)
	err := a.Acquire(waitCtx, waiter)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire error = %v, want context.DeadlineExceeded", err)
	}

	// The waiter must have withdrawn its queue entry on the way out.
	queue, err := a.fetchQueue(ctx, "jobs")
	if err != nil {
		t.Fatalf("fetchQueue: %v", err)
	}
	if len(queue) != 1 || queue[0].id != holder.ID() {
		t.Fatalf("queue = %+v, want only the holder entry", queue)
	}
}

func TestReleaseOfAbsentEntry(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	l := newTestLock(t, "jobs", core.Writer)
	if err := a.Acquire(ctx, l); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.Release(ctx, l); err != nil {
		t.Fatalf("Release: %v", err)
	}

	err := a.Release(ctx, l)
	if !errors.Is(err, core.ErrNotInQueue) {
		t.Fatalf("second Release error = %v, want ErrNotInQueue", err)
	}
}

func TestReleaseAllEmptiesTheTable(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		l := newTestLock(t, name, core.Writer)
		if err := a.Acquire(ctx, l); err != nil {
			t.Fatalf("Acquire %q: %v", name, err)
		}
	}

	if err := a.ReleaseAll(ctx); err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		queue, err := a.fetchQueue(ctx, name)
		if err != nil {
			t.Fatalf("fetchQueue %q: %v", name, err)
		}
		if len(queue) != 0 {
			t.Fatalf("queue %q has %d entries after ReleaseAll, want 0", name, len(queue))
		}
	}
}

func TestGCCollectsStaleAndRefreshesLive(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t)
	ctx := context.Background()

	live := newTestLock(t, "live", core.Writer)
	stale := newTestLock(t, "stale", core.Writer)
	if err := a.Acquire(ctx, live); err != nil {
		t.Fatalf("Acquire live: %v", err)
	}
	if err := a.Acquire(ctx, stale); err != nil {
		t.Fatalf("Acquire stale: %v", err)
	}

	// Age the stale lock's heartbeat behind the cutoff; only the live lock
	// is in the registry, so nothing refreshes the stale one.
	now := time.Now()
	old := now.Add(-time.Hour).UnixMilli()
	if _, err := a.db.ExecContext(ctx,
		`UPDATE lock_queue SET at = ? WHERE id = ?`, old, stale.ID()); err != nil {
		t.Fatalf("age heartbeat: %v", err)
	}

	registry := core.NewRegistry()
	registry.Add(live)

	stats, err := a.GC(ctx, core.GCRequest{
		Registry: registry,
		Interval: time.Minute,
		At:       now,
		StaleAt:  now.Add(-2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if stats.Collected != 1 {
		t.Errorf("Collected = %d, want 1", stats.Collected)
	}
	if stats.Refreshed != 1 {
		t.Errorf("Refreshed = %d, want 1", stats.Refreshed)
	}

	queue, err := a.fetchQueue(ctx, "stale")
	if err != nil {
		t.Fatalf("fetchQueue: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("stale queue has %d entries after GC, want 0", len(queue))
	}
}

func TestAdmitted(t *testing.T) {
	t.Parallel()

	w1 := newTestLock(t, "n", core.Writer)
	w2 := newTestLock(t, "n", core.Writer)
	r1 := newTestLock(t, "n", core.Reader)
	r2 := newTestLock(t, "n", core.Reader)

	row := func(l *core.Lock) queueRow {
		return queueRow{id: l.ID(), typ: l.Type().String()}
	}

	tests := []struct {
		name  string
		queue []queueRow
		lock  *core.Lock
		want  bool
	}{
		{"writer at head", []queueRow{row(w1), row(w2)}, w1, true},
		{"writer behind writer", []queueRow{row(w1), row(w2)}, w2, false},
		{"writer behind reader", []queueRow{row(r1), row(w1)}, w1, false},
		{"reader at head", []queueRow{row(r1), row(w1)}, r1, true},
		{"reader behind reader", []queueRow{row(r1), row(r2)}, r2, true},
		{"reader behind writer", []queueRow{row(w1), row(r1)}, r1, false},
		{"not in queue", []queueRow{row(w1)}, w2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := admitted(tc.queue, tc.lock); got != tc.want {
				t.Errorf("admitted() = %v, want %v", got, tc.want)
			}
		})
	}
}
