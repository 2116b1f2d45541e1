package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DeriveKey builds a deterministic cache key from the semantic content of a
// request. The content is canonicalized (RFC 8785) before hashing so that two
// logically identical requests produce the same key regardless of field
// ordering. This directly controls the hit rate, and therefore downstream
// cost, so it is an invariant rather than an optimization.
func DeriveKey(prefix string, content any) string {
	raw, err := json.Marshal(content)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", content))
	} else if canonical, err := jcs.Transform(raw); err == nil {
		raw = canonical
	}

	sum := sha256.Sum256(raw)
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}
