package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/giantswarm/qlock/internal/core"
)

// setupLockRetryInterval is the interval between consecutive attempts to
// acquire the setup file lock while another process runs setup.
const setupLockRetryInterval = 50 * time.Millisecond

// schema creates the queue table and its access-path indexes. The
// AUTOINCREMENT seq is the FIFO position; id is unique across all names;
// at is a unix-millisecond heartbeat consumed by the garbage cycle.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS lock_queue (
		seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		id   TEXT    NOT NULL UNIQUE,
		name TEXT    NOT NULL,
		type TEXT    NOT NULL,
		at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lock_queue_name ON lock_queue (name, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_lock_queue_at ON lock_queue (at)`,
}

// Setup creates the schema. Idempotent. A file lock beside the database
// serializes setup across processes: concurrent DDL on a fresh file is the
// one case where SQLite's busy timeout alone is not enough.
func (a *Adapter) Setup(ctx context.Context, _ core.SetupConfig) error {
	fl, err := a.acquireSetupLock(ctx)
	if err != nil {
		return err
	}
	defer a.releaseSetupLock(fl)

	for _, stmt := range schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("setup schema: %w", err)
		}
	}
	return nil
}

// acquireSetupLock acquires an exclusive lock on the setup lock file,
// retrying at setupLockRetryInterval until acquired or ctx is done.
func (a *Adapter) acquireSetupLock(ctx context.Context) (*flock.Flock, error) {
	lockPath := a.path + ".setup.lock"
	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, setupLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring setup lock %s: %w", lockPath, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquiring setup lock %s: %w", lockPath, ctx.Err())
		}
		return nil, fmt.Errorf("acquiring setup lock %s: lock not acquired", lockPath)
	}
	return fl, nil
}

// releaseSetupLock releases the file lock and closes its descriptor. The
// lock file is intentionally left on disk: removing it could invalidate a
// lock concurrently acquired on the same path by another process.
func (a *Adapter) releaseSetupLock(fl *flock.Flock) {
	if fl != nil {
		if err := fl.Close(); err != nil {
			a.log.Debug("failed to release setup lock", "path", fl.Path(), "error", err)
		}
	}
}
