package cache

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Pattern selects keys for bulk invalidation.
type Pattern interface {
	Match(key string) bool
}

// PatternFunc adapts a predicate to Pattern.
type PatternFunc func(key string) bool

// Match calls f(key).
func (f PatternFunc) Match(key string) bool { return f(key) }

// Prefix matches keys that start with prefix.
func Prefix(prefix string) Pattern {
	return PatternFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Glob matches keys with path.Match syntax, e.g. "diagram:*".
// A malformed glob matches nothing.
func Glob(glob string) Pattern {
	return PatternFunc(func(key string) bool {
		ok, err := path.Match(glob, key)
		return err == nil && ok
	})
}

// Regexp compiles expr into a Pattern.
func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegexp, err)
	}
	return PatternFunc(re.MatchString), nil
}

// MustRegexp is like Regexp but panics on a malformed expression.
func MustRegexp(expr string) Pattern {
	p, err := Regexp(expr)
	if err != nil {
		panic(err)
	}
	return p
}
