package diagram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema is matched by every *SchemaError.
var ErrSchema = errors.New("diagram: schema mismatch")

// Issue is one problem found while validating or repairing a spec.
type Issue struct {
	// Path is the field path, e.g. ["nodes", "3", "shape"].
	Path []string

	// Message is the human-readable description.
	Message string
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	return strings.Join(i.Path, ".") + ": " + i.Message
}

// SchemaError reports that a spec did not match the schema or needed repair.
// The spec returned alongside it is still usable.
type SchemaError struct {
	Issues []Issue
}

func (e *SchemaError) Error() string {
	switch len(e.Issues) {
	case 0:
		return ErrSchema.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrSchema, e.Issues[0])
	default:
		return fmt.Sprintf("%s: %s (and %d more)", ErrSchema, e.Issues[0], len(e.Issues)-1)
	}
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
