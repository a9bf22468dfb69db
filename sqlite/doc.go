// Package sqlite implements the qlock store protocol on a SQLite database
// file, coordinating processes that share one host. Queue order is the
// AUTOINCREMENT rowid of a single table; admission is computed client-side
// from that order, exactly as with the other adapters.
//
// SQLite has no server-side expiry, so liveness relies entirely on the
// garbage cycle: heartbeats of live locks are refreshed each cycle and
// entries that go stale are deleted.
package sqlite
