// Package cache provides a bounded in-process cache for diagram data.
//
// Bounded is generic over the value type and enforces three limits: an
// entry count, a summed byte size and a per-entry TTL. When a Set would
// break a bound, the entries with the lowest recency/frequency score
// (lastAccessAt + accessCount*AccessWeight) are evicted first, one at a
// time or in batches of ceil(EvictionBatchPercent*MaxEntries).
//
// The cache is a non-durable acceleration layer: a miss always falls back
// to the caller's source of truth, and GetOrLoad wires that fallback with
// per-key request coalescing.
//
// Keys are namespaced strings (see Key and HashedKey) so that a family of
// keys can be dropped with InvalidatePattern(Prefix(...)).
package cache
