// Package cache implements the persistent cache tier: a flat directory of
// text entries addressed by cache keys, bounded by a byte quota that must be
// granted through Provision before any operation succeeds. Until then every
// call fails with ErrUnprovisioned so callers can tell "cache unavailable"
// from "cache miss". Writes replace whole values through temp file + rename
// and are serialized per key.
package cache
