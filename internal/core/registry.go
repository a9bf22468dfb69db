package core

import "sync"

// Registry is the process-local set of locks currently tracked by a Locker:
// every lock from enqueue until its terminal removal (release, rejection).
// Membership is by lock identity (the process-unique id), so two locks on the
// same name never collide.
//
// It is safe for concurrent use: acquire paths, release paths, the
// acquire-timeout timer and the GC tick all mutate it.
type Registry struct {
	mu    sync.RWMutex
	locks map[string]*Lock
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*Lock)}
}

// Add inserts the lock. Re-adding the same lock is a no-op.
func (r *Registry) Add(l *Lock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[l.ID()] = l
}

// Remove deletes the lock and reports whether it was present.
func (r *Registry) Remove(l *Lock) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.locks[l.ID()]
	delete(r.locks, l.ID())
	return ok
}

// Has reports whether the lock is tracked.
func (r *Registry) Has(l *Lock) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.locks[l.ID()]
	return ok
}

// Len returns the number of tracked locks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locks)
}

// Clear drops every tracked lock.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.locks)
}

// Snapshot returns a copy of the tracked locks. The order is unspecified.
func (r *Registry) Snapshot() []*Lock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Lock, 0, len(r.locks))
	for _, l := range r.locks {
		out = append(out, l)
	}
	return out
}

// IDs returns the ids of the tracked locks. The order is unspecified.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.locks))
	for id := range r.locks {
		out = append(out, id)
	}
	return out
}

// ByName returns the tracked locks on the given name.
func (r *Registry) ByName(name string) []*Lock {
	return r.filter(func(l *Lock) bool { return l.Name() == name })
}

// ByType returns the tracked locks of the given type.
func (r *Registry) ByType(t LockType) []*Lock {
	return r.filter(func(l *Lock) bool { return l.Type() == t })
}

// ByStatus returns the tracked locks currently in the given status.
func (r *Registry) ByStatus(s LockStatus) []*Lock {
	return r.filter(func(l *Lock) bool { return l.Status() == s })
}

// filter returns the tracked locks matching keep. Lock.Status takes the
// per-lock mutex, so keep must not be called under r.mu in write mode;
// the read lock is sufficient and avoids lock-order inversions because no
// Lock method calls back into the registry.
func (r *Registry) filter(keep func(*Lock) bool) []*Lock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Lock
	for _, l := range r.locks {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
