package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/giantswarm/qlock/internal/core"
)

// DefaultCollection is the collection name used when WithCollection is not
// given.
const DefaultCollection = "locks"

// enqueueAttempts is the total number of upsert attempts per enqueue. Two
// racing upserts on a fresh name may both take the insert path; the loser
// fails on the unique name index and must retry as an update.
const enqueueAttempts = 3

// withdrawTimeout bounds the best-effort queue withdrawal after a
// non-acquisition exit. The acquire context may already be canceled at that
// point, so withdrawal runs on its own background context.
const withdrawTimeout = 5 * time.Second

// Compile-time capability checks.
var (
	_ core.Adapter      = (*Adapter)(nil)
	_ core.SetupAdapter = (*Adapter)(nil)
	_ core.GCAdapter    = (*Adapter)(nil)
)

// queueEntry is one waiter (or holder) in a name's queue.
type queueEntry struct {
	ID   string    `bson:"id"`
	Type string    `bson:"type"`
	At   time.Time `bson:"at"`
}

// queueDoc is the per-name document. Array order is insertion order and
// defines FIFO admission. The document-level At heartbeat feeds the TTL
// index so a whole document orphaned by a crashed fleet is eventually
// reaped by the server.
type queueDoc struct {
	Name  string       `bson:"name"`
	At    time.Time    `bson:"at"`
	Queue []queueEntry `bson:"queue"`
}

// Option configures an Adapter during construction.
type Option func(*Adapter)

// WithCollection sets the collection name. Default: DefaultCollection.
// Panics if name is empty.
func WithCollection(name string) Option {
	if name == "" {
		panic("qlock/mongodb: collection name must not be empty")
	}
	return func(a *Adapter) {
		a.collName = name
	}
}

// Adapter coordinates locks through a MongoDB collection. All store
// mutations are single-document atomic operations; no transactions are
// required. Safe for concurrent use.
type Adapter struct {
	client   *mongo.Client
	dbName   string
	collName string
	coll     *mongo.Collection
	log      *slog.Logger
}

// New creates an adapter on the given client and database. The collection
// handle is pinned to primary read preference: admission is decided from
// reads, and a stale secondary view must never decide admission.
//
// Panics if client is nil or database is empty; both are programmer errors
// caught at construction time.
func New(client *mongo.Client, database string, opts ...Option) *Adapter {
	if client == nil {
		panic("qlock/mongodb: client must not be nil")
	}
	if database == "" {
		panic("qlock/mongodb: database name must not be empty")
	}
	a := &Adapter{
		client:   client,
		dbName:   database,
		collName: DefaultCollection,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.coll = client.Database(database).Collection(
		a.collName,
		options.Collection().SetReadPreference(readpref.Primary()),
	)
	a.log = core.Logger().With("adapter", "mongodb", "collection", a.collName)
	return a
}

// Acquire enqueues the lock and polls the admission rule until the lock is
// Acquired or leaves Acquiring. The first poll evaluates the document
// returned by the enqueue upsert; subsequent polls re-read from the primary.
func (a *Adapter) Acquire(ctx context.Context, l *core.Lock) error {
	doc, err := a.enqueue(ctx, l)
	if err != nil {
		return err
	}

	interval := l.Options().PullInterval
	queue := doc.Queue
	for {
		if admitted(queue, l) {
			// The acquire-timeout may have settled the lock between the
			// read and here; the state machine arbitrates.
			if l.ToAcquired() == nil {
				return nil
			}
		}
		if !l.IsAcquiring() {
			a.withdraw(l)
			return nil
		}

		select {
		case <-ctx.Done():
			a.withdraw(l)
			return fmt.Errorf("waiting for admission: %w", ctx.Err())
		case <-time.After(interval):
		}

		next, found, err := a.fetch(ctx, l)
		if err != nil {
			a.withdraw(l)
			return err
		}
		if !found {
			// The entry vanished underneath us: a garbage cycle collected
			// it because our heartbeat went stale (e.g. GC interval far
			// shorter than the wait). The lock can never be admitted.
			_ = l.Reject(fmt.Errorf("lock %s on %q: %w", l.ID(), l.Name(), core.ErrNotInQueue))
			return nil
		}
		queue = next.Queue
	}
}

// enqueue upserts the per-name document and pushes the lock's queue entry,
// returning the post-update document. `$max` on the document heartbeat keeps
// it monotonic; `$setOnInsert` pins the name on the insert path. A
// duplicate-key error means another process raced the insert of a fresh
// name — the retry then takes the update path.
func (a *Adapter) enqueue(ctx context.Context, l *core.Lock) (queueDoc, error) {
	entry := queueEntry{ID: l.ID(), Type: l.Type().String(), At: l.CreatedAt()}
	filter := bson.D{{Key: "name", Value: l.Name()}}
	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{{Key: "name", Value: l.Name()}}},
		{Key: "$max", Value: bson.D{{Key: "at", Value: l.CreatedAt()}}},
		{Key: "$push", Value: bson.D{{Key: "queue", Value: entry}}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var lastErr error
	for attempt := 1; attempt <= enqueueAttempts; attempt++ {
		var doc queueDoc
		err := a.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			return doc, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return queueDoc{}, fmt.Errorf("enqueue lock %s on %q: %w", l.ID(), l.Name(), err)
		}
		lastErr = err
		a.log.Debug("enqueue upsert raced, retrying",
			"lock", l.ID(), "name", l.Name(), "attempt", attempt)
	}
	return queueDoc{}, fmt.Errorf("enqueue lock %s on %q: retries exhausted: %w", l.ID(), l.Name(), lastErr)
}

// fetch re-reads the queue document containing the lock's entry. The
// collection handle pins the read to the primary. found is false when no
// document contains the entry anymore.
func (a *Adapter) fetch(ctx context.Context, l *core.Lock) (queueDoc, bool, error) {
	var doc queueDoc
	err := a.coll.FindOne(ctx, bson.D{{Key: "queue.id", Value: l.ID()}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return queueDoc{}, false, nil
	}
	if err != nil {
		return queueDoc{}, false, fmt.Errorf("poll lock %s on %q: %w", l.ID(), l.Name(), err)
	}
	return doc, true, nil
}

// admitted applies the FIFO admission rule to the queue array:
//
//   - a Writer is admitted iff it is the head of the queue;
//   - a Reader is admitted iff no Writer precedes it.
func admitted(queue []queueEntry, l *core.Lock) bool {
	writerWire := core.Writer.String()
	for i, e := range queue {
		if e.ID == l.ID() {
			return l.Type() == core.Reader || i == 0
		}
		if e.Type == writerWire {
			return false
		}
	}
	return false
}

// withdraw pulls the lock's entry out of its queue after a non-acquisition
// exit. Best-effort: the entry may already be gone (collected, or never
// visible), and the acquire context may be canceled, so this runs on its own
// bounded context and only logs failures.
func (a *Adapter) withdraw(l *core.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), withdrawTimeout)
	defer cancel()

	filter := bson.D{{Key: "name", Value: l.Name()}}
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "queue", Value: bson.D{{Key: "id", Value: l.ID()}}},
	}}}
	if _, err := a.coll.UpdateOne(ctx, filter, update); err != nil {
		a.log.Debug("failed to withdraw queue entry",
			"lock", l.ID(), "name", l.Name(), "error", err)
	}
}

// Release pulls the lock's entry out of its queue and transitions the lock
// to Released. A pull that modifies nothing means the entry is already gone
// (double release, or collected by GC) and fails with ErrNotInQueue.
func (a *Adapter) Release(ctx context.Context, l *core.Lock) error {
	filter := bson.D{{Key: "name", Value: l.Name()}}
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "queue", Value: bson.D{{Key: "id", Value: l.ID()}}},
	}}}

	res, err := a.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), err)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), core.ErrNotInQueue)
	}
	return l.ToReleased()
}

// ReleaseAll drops every queue document in the collection. The documents are
// shared fleet-wide, so this clears entries of other processes too — it is a
// teardown operation, not a per-process cleanup.
func (a *Adapter) ReleaseAll(ctx context.Context) error {
	if _, err := a.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("release all: %w", err)
	}
	return nil
}
