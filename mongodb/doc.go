// Package mongodb implements the qlock store protocol on a MongoDB
// collection: one document per lock name holding an ordered queue of
// waiters, heartbeat timestamps refreshed by garbage collection, and a TTL
// index that eventually reaps documents orphaned by crashed processes.
//
// Admission is computed client-side from the queue order, always from a
// primary read so a stale secondary view never decides who holds a lock.
package mongodb
