// Package canonical produces deterministic JSON encodings.
//
// Two logically equal values always encode to the same bytes regardless of
// map iteration order. Cache keys and ETags are derived from this form.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal returns the canonical JSON encoding of v.
//
// Maps are emitted with sorted keys at every depth. Values that are not
// already generic JSON (structs, typed maps, pointers) are normalized through
// a JSON round trip first, so maps nested inside structs are sorted as well.
func Marshal(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any, []any, string, bool, float64, json.Number:
		return encode(val)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}
	return encode(generic)
}

func encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		return encodeMap(val)
	case []any:
		return encodeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func encodeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := encode(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func encodeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := encode(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
