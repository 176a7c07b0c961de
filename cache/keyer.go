package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jonwraymond/diagramops/canonical"
)

// KeySeparator joins namespace and key parts.
const KeySeparator = ":"

// Key joins a namespace and its parts into a cache key.
// Format: <namespace>:<part>:<part>...
//
// Keys built this way can be invalidated as a family with
// Prefix(Key(namespace, parts...) + KeySeparator).
func Key(namespace string, parts ...string) string {
	if len(parts) == 0 {
		return namespace
	}
	return namespace + KeySeparator + strings.Join(parts, KeySeparator)
}

// HashedKey derives a deterministic key for structured input, such as a list
// query with filters.
// Format: <namespace>:<hash>
// where hash is the first 16 characters of SHA-256(canonical JSON(input)).
func HashedKey(namespace string, input any) (string, error) {
	data, err := canonical.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	hash := sha256.Sum256(data)
	return Key(namespace, hex.EncodeToString(hash[:8])), nil
}
