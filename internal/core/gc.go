package core

import (
	"context"
	"time"
)

// maybeStartGC starts the periodic garbage-collection driver if GC is
// enabled, the adapter supports it, and no driver is currently running.
// Called on every acquisition so the driver restarts after having parked
// itself on an empty registry.
func (lk *Locker) maybeStartGC() {
	if lk.cfg.GCInterval <= 0 || lk.gcClosed.Load() {
		return
	}
	if _, ok := lk.adapter.(GCAdapter); !ok {
		return
	}
	if !lk.gcStarted.CompareAndSwap(false, true) {
		return
	}
	go lk.gcLoop()
}

// gcLoop is the driver goroutine: one ticker at the GC interval. A tick with
// an empty registry parks the driver (the next acquisition restarts it); a
// tick that lands while the previous cycle is still running emits an Error
// event and is skipped, so a slow store surfaces as a signal to raise the
// interval rather than as unbounded cycle pile-up.
func (lk *Locker) gcLoop() {
	ticker := time.NewTicker(lk.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lk.gcStop:
			lk.gcStarted.Store(false)
			return
		case <-ticker.C:
			if lk.registry.Len() == 0 {
				// Park: publish the stopped state, then re-check. An
				// acquisition between the Len read and the Store sees
				// gcStarted still true and skips its own start, so the
				// driver must reclaim the flag and keep running whenever
				// the registry turned non-empty underneath it. Without
				// the re-check that lock would sit unrefreshed until a
				// peer collected it mid-hold.
				lk.gcStarted.Store(false)
				if lk.registry.Len() > 0 && lk.gcStarted.CompareAndSwap(false, true) {
					continue
				}
				return
			}
			if !lk.gcBusy.CompareAndSwap(false, true) {
				lk.events.emit(Error{Err: ErrGCRunning})
				continue
			}
			// Run the cycle off the ticker goroutine so overlap is
			// observable: a cycle slower than the interval must not
			// silently absorb the next tick.
			go func() {
				defer lk.gcBusy.Store(false)
				ctx, cancel := context.WithTimeout(context.Background(), lk.cfg.GCTimeout)
				defer cancel()
				lk.runGCCycle(ctx)
			}()
		}
	}
}

// runGCCycle executes one garbage cycle and emits the outcome: GarbageCycle
// on success, Error on failure. Errors never propagate to lock callers; the
// driver simply tries again next tick.
func (lk *Locker) runGCCycle(ctx context.Context) (GCStats, error) {
	gca := lk.adapter.(GCAdapter)

	at := time.Now()
	req := GCRequest{
		Registry: lk.registry,
		Interval: lk.cfg.GCInterval,
		At:       at,
		StaleAt:  at.Add(-2 * lk.cfg.GCInterval),
	}

	stats, err := gca.GC(ctx, req)
	took := time.Since(at)
	if err != nil {
		Logger().Warn("garbage cycle failed", "error", err, "took", took)
		lk.events.emit(Error{Err: err})
		return GCStats{}, err
	}

	Logger().Debug("garbage cycle complete",
		"collected", stats.Collected, "refreshed", stats.Refreshed, "took", took)
	lk.events.emit(GarbageCycle{Collected: stats.Collected, Refreshed: stats.Refreshed, Took: took})
	return stats, nil
}

// GC runs one garbage cycle immediately, outside the periodic schedule, and
// returns its stats. Returns ErrGCUnsupported when the adapter cannot
// collect or no interval is configured, and ErrGCRunning when a cycle is
// already in flight.
func (lk *Locker) GC(ctx context.Context) (GCStats, error) {
	if lk.cfg.GCInterval <= 0 {
		return GCStats{}, ErrGCUnsupported
	}
	if _, ok := lk.adapter.(GCAdapter); !ok {
		return GCStats{}, ErrGCUnsupported
	}
	if !lk.gcBusy.CompareAndSwap(false, true) {
		return GCStats{}, ErrGCRunning
	}
	defer lk.gcBusy.Store(false)
	return lk.runGCCycle(ctx)
}
