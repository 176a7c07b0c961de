// Package etag derives conditional-request fingerprints for cached data.
//
// Tags are strong ETags: a double-quoted 16-digit hex xxhash64 of the
// canonical JSON encoding of the value. They detect change, they do not
// protect integrity.
package etag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jonwraymond/diagramops/canonical"
)

// Wildcard matches any current tag in an If-None-Match header.
const Wildcard = "*"

// Generate returns the ETag for data. []byte and string values are hashed
// as-is; anything else is hashed over its canonical JSON encoding.
func Generate(data any) (string, error) {
	var sum uint64
	switch v := data.(type) {
	case []byte:
		sum = xxhash.Sum64(v)
	case string:
		sum = xxhash.Sum64String(v)
	default:
		raw, err := canonical.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("etag: %w", err)
		}
		sum = xxhash.Sum64(raw)
	}
	return format(sum), nil
}

// MustGenerate is like Generate but panics if data cannot be encoded.
func MustGenerate(data any) string {
	tag, err := Generate(data)
	if err != nil {
		panic(err)
	}
	return tag
}

func format(sum uint64) string {
	hex := strconv.FormatUint(sum, 16)
	return `"` + strings.Repeat("0", 16-len(hex)) + hex + `"`
}

// Matches reports whether an If-None-Match style header value matches
// current. An empty header never matches and "*" matches anything.
// Otherwise the header is a comma-separated list and matches when one
// trimmed element equals current. Weak tags (W/"...") compare by their
// opaque value.
func Matches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	current = strings.TrimPrefix(current, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == Wildcard {
			return true
		}
		if candidate != "" && strings.TrimPrefix(candidate, "W/") == current {
			return true
		}
	}
	return false
}
