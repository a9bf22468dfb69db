// Package core implements the qlock lock entity, registry, coordinator and
// in-memory adapter. The public qlock package re-exports these types; the
// adapter subpackages (mongodb, sqlite) build on the same contract.
package core
