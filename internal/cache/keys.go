package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Key derives the deterministic cache key for one model call: a hash of the
// prompt version, the call kind and the normalized payload. Bumping the
// version changes every key, which invalidates all prior entries without
// deleting them.
func Key(version, kind, payload string) string {
	seed := strings.Join([]string{version, kind, payload}, "\x00")
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}
