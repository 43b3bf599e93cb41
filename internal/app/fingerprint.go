package app

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Fingerprint returns a stable sha1-hex hash of review text, used to
// detect content changes without comparing full text on every sync.
// Surrounding whitespace does not count as a change.
func Fingerprint(text string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
