// Package id generates unique identifiers for expectations and log entries.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// UUID returns a random UUID v4 string. Used as the default expectation id.
func UUID() string {
	return uuid.NewString()
}

// Short returns a 16-character random hex id for request log entries where
// brevity matters.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
