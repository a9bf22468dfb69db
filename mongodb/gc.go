package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/qlock/internal/core"
)

// GC runs one garbage cycle: collect stale queue entries across all
// documents, and refresh the heartbeat of every registry lock. The two
// updates are independent — collect matches on heartbeats strictly older
// than StaleAt, refresh raises live heartbeats to At — so they run in
// parallel.
//
// Refresh uses `$max` rather than `$set`/`$currentDate`: a delayed or
// reordered refresh can then never regress a heartbeat that a newer cycle
// already advanced, which makes the unordered bulk write safe.
func (a *Adapter) GC(ctx context.Context, req core.GCRequest) (core.GCStats, error) {
	var stats core.GCStats

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.collect(ctx, req)
		stats.Collected = n
		return err
	})
	g.Go(func() error {
		n, err := a.refresh(ctx, req)
		stats.Refreshed = n
		return err
	})
	if err := g.Wait(); err != nil {
		return core.GCStats{}, err
	}
	return stats, nil
}

// collect pulls every queue entry whose heartbeat predates the staleness
// cutoff, across all documents, and returns the number of documents
// modified.
func (a *Adapter) collect(ctx context.Context, req core.GCRequest) (int, error) {
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "queue", Value: bson.D{
			{Key: "at", Value: bson.D{{Key: "$lt", Value: req.StaleAt}}},
		}},
	}}}
	res, err := a.coll.UpdateMany(ctx, bson.D{}, update)
	if err != nil {
		return 0, fmt.Errorf("collect stale entries: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// refresh raises the heartbeat of every registry lock (entry-level and
// document-level) to the cycle timestamp with one unordered bulk update per
// lock, and returns the number of entries actually advanced.
func (a *Adapter) refresh(ctx context.Context, req core.GCRequest) (int, error) {
	locks := req.Registry.Snapshot()
	if len(locks) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(locks))
	for _, l := range locks {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "queue.id", Value: l.ID()}}).
			SetUpdate(bson.D{{Key: "$max", Value: bson.D{
				{Key: "queue.$.at", Value: req.At},
				{Key: "at", Value: req.At},
			}}}))
	}

	res, err := a.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("refresh heartbeats: %w", err)
	}
	return int(res.ModifiedCount), nil
}
