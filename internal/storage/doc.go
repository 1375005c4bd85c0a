// Package storage holds the active expectation set. Readers match against an
// immutable snapshot swapped atomically by writers, so the request hot path
// never takes a lock; only usage counters are touched during a match.
package storage
