package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"

	"github.com/giantswarm/qlock/internal/core"
)

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

// Adapter coordinates locks through a SQLite database file shared by
// processes on one host. Safe for concurrent use.
type Adapter struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// New opens the database file at path, creating it if absent. WAL mode lets
// pollers read while another process writes; the busy timeout absorbs write
// contention between processes; NORMAL synchronous is acceptable because a
// lost heartbeat update is recovered by the next garbage cycle.
//
// Panics if path is empty. Close the adapter when done.
func New(path string) (*Adapter, error) {
	if path == "" {
		panic("qlock/sqlite: database path must not be empty")
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Single connection — the driver serializes writes anyway, and one
	// connection keeps transaction state trivial.
	db.SetMaxOpenConns(1)

	return &Adapter{
		db:   db,
		path: path,
		log:  core.Logger().With("adapter", "sqlite", "path", path),
	}, nil
}

// Close closes the underlying database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Acquire enqueues the lock and polls the admission rule until the lock is
// Acquired or leaves Acquiring.
func (a *Adapter) Acquire(ctx context.Context, l *core.Lock) error {
	if err := a.enqueue(ctx, l); err != nil {
		return err
	}

	interval := l.Options().PullInterval
	for {
		queue, err := a.fetchQueue(ctx, l.Name())
		if err != nil {
			a.withdraw(l)
			return err
		}
		if !contains(queue, l.ID()) {
			// The entry vanished underneath us: a garbage cycle deleted it
			// because our heartbeat went stale. The lock can never be
			// admitted.
			_ = l.Reject(fmt.Errorf("lock %s on %q: %w", l.ID(), l.Name(), core.ErrNotInQueue))
			return nil
		}
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
	}
}

// queueRow is one waiter (or holder) in a name's queue, in rowid order.
type queueRow struct {
	id  string
	typ string
}

// enqueue appends the lock to its name's queue. The AUTOINCREMENT rowid
// fixes the FIFO position at insert time.
func (a *Adapter) enqueue(ctx context.Context, l *core.Lock) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO lock_queue (id, name, type, at) VALUES (?, ?, ?, ?)`,
		l.ID(), l.Name(), l.Type().String(), l.CreatedAt().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue lock %s on %q: %w", l.ID(), l.Name(), err)
	}
	return nil
}

// fetchQueue reads a name's queue in FIFO order.
func (a *Adapter) fetchQueue(ctx context.Context, name string) ([]queueRow, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, type FROM lock_queue WHERE name = ? ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("poll queue %q: %w", name, err)
	}
	defer rows.Close()

	var queue []queueRow
	for rows.Next() {
		var r queueRow
		if err := rows.Scan(&r.id, &r.typ); err != nil {
			return nil, fmt.Errorf("poll queue %q: %w", name, err)
		}
		queue = append(queue, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("poll queue %q: %w", name, err)
	}
	return queue, nil
}

func contains(queue []queueRow, id string) bool {
	for _, r := range queue {
		if r.id == id {
			return true
		}
	}
	return false
}

// admitted applies the FIFO admission rule to the queue:
//
//   - a Writer is admitted iff it is the head of the queue;
//   - a Reader is admitted iff no Writer precedes it.
func admitted(queue []queueRow, l *core.Lock) bool {
	writerWire := core.Writer.String()
	for i, r := range queue {
		if r.id == l.ID() {
			return l.Type() == core.Reader || i == 0
		}
		if r.typ == writerWire {
			return false
		}
	}
	return false
}

// withdraw deletes the lock's queue row after a non-acquisition exit.
// Best-effort: the row may already be gone, and the acquire context may be
// canceled, so this runs on its own bounded context and only logs failures.
func (a *Adapter) withdraw(l *core.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), withdrawTimeout)
	defer cancel()

	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM lock_queue WHERE id = ?`, l.ID()); err != nil {
		a.log.Debug("failed to withdraw queue entry",
			"lock", l.ID(), "name", l.Name(), "error", err)
	}
}

// Release deletes the lock's queue row and transitions the lock to Released.
// A delete that removes nothing means the row is already gone (double
// release, or collected by GC) and fails with ErrNotInQueue.
func (a *Adapter) Release(ctx context.Context, l *core.Lock) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM lock_queue WHERE id = ?`, l.ID())
	if err != nil {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), err)
	}
	if n == 0 {
		return fmt.Errorf("release lock %s on %q: %w", l.ID(), l.Name(), core.ErrNotInQueue)
	}
	return l.ToReleased()
}

// ReleaseAll empties the queue table. The table is shared by every process
// on the host, so this clears entries of other processes too — it is a
// teardown operation, not a per-process cleanup.
func (a *Adapter) ReleaseAll(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM lock_queue`); err != nil {
		return fmt.Errorf("release all: %w", err)
	}
	return nil
}
