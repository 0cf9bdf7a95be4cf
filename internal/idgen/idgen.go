// Package idgen generates random identifiers for assessments and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Prefixes used across SafeScore.
const (
	AssessmentPrefix = "wra_"
	BatchPrefix      = "batch_"
)

func random(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}

// New returns a UUID-shaped random ID, used for request IDs.
func New() string {
	b := random(16)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix returns prefix followed by 24 random hex chars.
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(random(12))
}
