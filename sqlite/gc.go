package sqlite

import (
	"context"
	"fmt"

	"github.com/giantswarm/qlock/internal/core"
)

// GC runs one garbage cycle: delete queue rows whose heartbeat predates the
// staleness cutoff, then raise the heartbeat of every registry lock to the
// cycle timestamp. The updates run sequentially — the adapter holds a single
// connection, so there is nothing to gain from issuing them concurrently.
//
// Refresh uses MAX(at, ?) rather than a plain assignment so a delayed cycle
// can never regress a heartbeat that a newer cycle already advanced.
func (a *Adapter) GC(ctx context.Context, req core.GCRequest) (core.GCStats, error) {
	var stats core.GCStats

	res, err := a.db.ExecContext(ctx,
		`DELETE FROM lock_queue WHERE at < ?`, req.StaleAt.UnixMilli())
	if err != nil {
		return core.GCStats{}, fmt.Errorf("collect stale entries: %w", err)
	}
	collected, err := res.RowsAffected()
	if err != nil {
		return core.GCStats{}, fmt.Errorf("collect stale entries: %w", err)
	}
	stats.Collected = int(collected)

	at := req.At.UnixMilli()
	for _, l := range req.Registry.Snapshot() {
		res, err := a.db.ExecContext(ctx,
			`UPDATE lock_queue SET at = MAX(at, ?) WHERE id = ?`, at, l.ID())
		if err != nil {
			return core.GCStats{}, fmt.Errorf("refresh heartbeat of %s: %w", l.ID(), err)
		}
		refreshed, err := res.RowsAffected()
		if err != nil {
			return core.GCStats{}, fmt.Errorf("refresh heartbeat of %s: %w", l.ID(), err)
		}
		stats.Refreshed += int(refreshed)
	}
	return stats, nil
}
