// Package feed polls RSS/Atom feeds on independent schedules and emits the
// items not seen before, backed by a persisted seen-item store.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Item is one news entry, alive only between fetch and post-or-discard.
type Item struct {
	Origin    string
	Title     string
	Links     []string
	Published time.Time
	Hash      string
}

// Link returns the primary link.
func (it Item) Link() string {
	if len(it.Links) == 0 {
		return ""
	}
	return it.Links[0]
}

// HashLinks computes the stable item identifier: the first 8 hex chars of
// the SHA-256 over the concatenated links.
func HashLinks(links []string) string {
	sum := sha256.Sum256([]byte(strings.Join(links, "")))
	return hex.EncodeToString(sum[:])[:8]
}
