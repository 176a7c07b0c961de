package codec

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Prefix marks a compressed wire payload.
const Prefix = "gz:"

// Kind tells the two Payload variants apart.
type Kind int

const (
	KindRaw Kind = iota
	KindCompressed
)

func (k Kind) String() string {
	if k == KindCompressed {
		return "compressed"
	}
	return "raw"
}

// Payload is an encoded spec: either raw JSON text or gzip bytes.
// The zero value is an empty Raw payload.
type Payload struct {
	kind Kind
	text string
	data []byte
}

// Raw returns a payload holding JSON text.
func Raw(text string) Payload {
	return Payload{kind: KindRaw, text: text}
}

// Compressed returns a payload holding a gzip stream. data is owned by the
// payload after the call.
func Compressed(data []byte) Payload {
	return Payload{kind: KindCompressed, data: data}
}

// Kind returns the variant.
func (p Payload) Kind() Kind { return p.kind }

// Text returns the JSON of a Raw payload, or "" for Compressed.
func (p Payload) Text() string { return p.text }

// Bytes returns the gzip stream of a Compressed payload, or nil for Raw.
func (p Payload) Bytes() []byte { return p.data }

// String returns the wire form.
func (p Payload) String() string {
	if p.kind == KindCompressed {
		return Prefix + base64.StdEncoding.EncodeToString(p.data)
	}
	return p.text
}

// Len returns the length of the wire form without building it.
func (p Payload) Len() int {
	if p.kind == KindCompressed {
		return len(Prefix) + base64.StdEncoding.EncodedLen(len(p.data))
	}
	return len(p.text)
}

// SizeBytes reports the in-memory size for cache accounting.
func (p Payload) SizeBytes() int64 {
	return int64(len(p.text) + len(p.data))
}

// ParsePayload parses a wire string. Text without Prefix is Raw. After the
// prefix only the standard base64 alphabet with trailing padding is
// accepted; anything else is a *DecodeError at StageBase64.
func ParsePayload(wire string) (Payload, error) {
	body, ok := strings.CutPrefix(wire, Prefix)
	if !ok {
		return Raw(wire), nil
	}

	if err := checkAlphabet(body); err != nil {
		return Payload{}, &DecodeError{Stage: StageBase64, Err: err}
	}
	data, err := base64.StdEncoding.Strict().DecodeString(body)
	if err != nil {
		return Payload{}, &DecodeError{Stage: StageBase64, Err: err}
	}
	return Compressed(data), nil
}

var (
	errAlphabet = errors.New("character outside base64 alphabet")
	errPadding  = errors.New("misplaced base64 padding")
)

// checkAlphabet rejects what the decoder would silently skip, such as
// line breaks.
func checkAlphabet(s string) error {
	body := strings.TrimRight(s, "=")
	if len(s)-len(body) > 2 {
		return errPadding
	}
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		case c == '=':
			return errPadding
		default:
			return errAlphabet
		}
	}
	return nil
}
