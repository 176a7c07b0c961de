package observe

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig matches every error returned by Config.Validate.
var ErrInvalidConfig = errors.New("observe: invalid config")

// Reasons carried by a FieldError. Match them with errors.Is.
var (
	ErrMissingServiceName     = errors.New("service name is required")
	ErrInvalidSamplePct       = errors.New("sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("unknown log level")
)

// ErrMissingOpName indicates Op.Name is empty.
var ErrMissingOpName = errors.New("observe: operation name is required")

// FieldError reports one rejected Config field by its yaml path.
type FieldError struct {
	Field  string
	Value  any
	Reason error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("observe: %s = %v: %v", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Reason }

// Is reports true for ErrInvalidConfig so callers need not know the field.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidConfig }

// Redacted field keys. Diagram bodies can carry user content, so the spec
// body, its wire payload and raw bytes are never logged verbatim.
var RedactedFields = []string{
	"spec",
	"payload",
	"raw",
	"body",
	"password",
	"secret",
	"token",
	"api_key",
	"credential",
}
