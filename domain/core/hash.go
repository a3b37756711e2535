package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Fingerprint hashes a set of canonical lines independent of their order.
// Used to tag stored results with the inputs that produced them.
func Fingerprint(lines []string) Hash {
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	return NewHash([]byte(strings.Join(sorted, "\n")))
}
