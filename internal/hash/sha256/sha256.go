// Package sha256 fingerprints snapshot payloads so unchanged documents are not re-uploaded.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Tracker remembers the last digest recorded per name.
type Tracker struct {
	mu   sync.Mutex
	last map[string]string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]string)}
}

// Changed reports whether digest differs from the one last recorded for name.
func (t *Tracker) Changed(name, digest string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[name] != digest
}

// Record stores digest as the current version of name.
func (t *Tracker) Record(name, digest string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[name] = digest
}
