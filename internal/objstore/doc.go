// Package objstore is the shared object store: an arena of immutable,
// type-tagged data buffers indexed by handle id and owned collectively through
// an atomic reference count.
//
// # Lifecycle
//
// A module builds a draft with New (or Derive for a modified copy of an
// existing object). Publish is the single point where a draft becomes visible
// to other readers; it assigns the handle id and returns a Handle holding one
// reference. Readers obtain additional references with Acquire or Retain and
// give them back with Release. The release that takes the count to zero frees
// the buffer from the arena, exactly once.
//
// Published objects are never mutated. Concurrent readers need no locking; the
// reference count is the only mutable shared state.
package objstore
