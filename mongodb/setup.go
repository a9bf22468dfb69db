package mongodb

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/giantswarm/qlock/internal/core"
)

// Index names. The setup reconciler treats any other non-primary index on
// the collection as stray and drops it.
const (
	idxName    = "idx_name"
	idxQueueID = "idx_queue_id"
	idxAt      = "idx_at"
)

// Server error codes surfaced during setup reconciliation.
const (
	codeNamespaceExists      = 48
	codeIndexOptionsConflict = 85
	codeIndexKeySpecConflict = 86
)

// Setup creates the collection and reconciles its indexes. Idempotent: an
// existing collection is tolerated, matching indexes are kept, conflicting
// ones are dropped and recreated, and stray ones are removed. When GC is
// enabled the heartbeat index carries a TTL of three intervals so documents
// orphaned by a crashed fleet are eventually reaped server-side.
func (a *Adapter) Setup(ctx context.Context, cfg core.SetupConfig) error {
	if err := a.ensureCollection(ctx); err != nil {
		return err
	}
	return a.ensureIndexes(ctx, cfg)
}

// ensureCollection creates the collection, tolerating NamespaceExists from a
// concurrent or previous setup.
func (a *Adapter) ensureCollection(ctx context.Context) error {
	err := a.client.Database(a.dbName).CreateCollection(ctx, a.collName)
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
		return nil
	}
	return fmt.Errorf("create collection %s: %w", a.collName, err)
}

// ensureIndexes reconciles the collection's indexes against the wanted set.
func (a *Adapter) ensureIndexes(ctx context.Context, cfg core.SetupConfig) error {
	wanted := a.indexModels(cfg)

	for _, model := range wanted {
		if err := a.createIndex(ctx, model); err != nil {
			return err
		}
	}
	return a.dropStrayIndexes(ctx, wanted)
}

// indexModels returns the wanted index set. The heartbeat index gets a TTL
// only when GC is enabled: without GC nothing refreshes heartbeats, and a
// TTL would reap documents of perfectly healthy long-held locks.
func (a *Adapter) indexModels(cfg core.SetupConfig) []mongo.IndexModel {
	atOpts := options.Index().SetName(idxAt)
	if cfg.GCInterval > 0 {
		expire := int32(math.Ceil((3 * cfg.GCInterval).Seconds()))
		atOpts = atOpts.SetExpireAfterSeconds(expire)
	}
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName(idxName).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "queue.id", Value: 1}},
			Options: options.Index().SetName(idxQueueID),
		},
		{
			Keys:    bson.D{{Key: "at", Value: 1}},
			Options: atOpts,
		},
	}
}

// createIndex creates one index, dropping and recreating it when the server
// reports a spec or options conflict with an existing index of the same
// name (e.g. the TTL changed because the GC interval changed).
func (a *Adapter) createIndex(ctx context.Context, model mongo.IndexModel) error {
	name := *model.Options.Name

	_, err := a.coll.Indexes().CreateOne(ctx, model)
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) ||
		(cmdErr.Code != codeIndexOptionsConflict && cmdErr.Code != codeIndexKeySpecConflict) {
		return fmt.Errorf("create index %s: %w", name, err)
	}

	a.log.Debug("index conflicts with existing definition, recreating", "index", name)
	if _, err := a.coll.Indexes().DropOne(ctx, name); err != nil {
		return fmt.Errorf("drop conflicting index %s: %w", name, err)
	}
	if _, err := a.coll.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("recreate index %s: %w", name, err)
	}
	return nil
}

// dropStrayIndexes removes any non-primary index that is not part of the
// wanted set, so leftover indexes from older layouts cannot shadow or
// conflict with the reconciled ones.
func (a *Adapter) dropStrayIndexes(ctx context.Context, wanted []mongo.IndexModel) error {
	keep := map[string]bool{"_id_": true}
	for _, model := range wanted {
		keep[*model.Options.Name] = true
	}

	cursor, err := a.coll.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	var existing []bson.M
	if err := cursor.All(ctx, &existing); err != nil {
		return fmt.Errorf("read indexes: %w", err)
	}

	for _, spec := range existing {
		name, _ := spec["name"].(string)
		if name == "" || keep[name] {
			continue
		}
		a.log.Debug("dropping stray index", "index", name)
		if _, err := a.coll.Indexes().DropOne(ctx, name); err != nil {
			return fmt.Errorf("drop stray index %s: %w", name, err)
		}
	}
	return nil
}
