package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for decode failures.
var (
	// ErrDecompressionLimit is matched by *LimitError.
	ErrDecompressionLimit = errors.New("codec: decompression limit exceeded")

	// ErrDecode is matched by *DecodeError.
	ErrDecode = errors.New("codec: invalid stored data")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("codec: invalid config")

	// ErrMarshal is returned when a spec cannot be serialized.
	ErrMarshal = errors.New("codec: spec cannot be serialized")
)

// LimitError reports a compressed payload that inflates past the limit.
type LimitError struct {
	Limit int64 // configured ceiling in bytes
	Read  int64 // bytes inflated when the stream was abandoned
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: read %d bytes, limit %d", ErrDecompressionLimit, e.Read, e.Limit)
}

// Is reports whether target is ErrDecompressionLimit.
func (e *LimitError) Is(target error) bool {
	return target == ErrDecompressionLimit
}

// Stage names the decode step that failed.
type Stage string

const (
	StageBase64 Stage = "base64"
	StageGzip   Stage = "gzip"
	StageJSON   Stage = "json"
)

// DecodeError reports malformed base64, a corrupt gzip stream or
// unparsable JSON.
type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecode, e.Stage, e.Err)
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
