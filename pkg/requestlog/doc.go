// Package requestlog records the requests the engine has seen, together with
// the expectation each one matched, and answers retrieval and verification
// queries over that history. The log is a bounded ring: when full, the oldest
// entries are dropped first.
package requestlog
