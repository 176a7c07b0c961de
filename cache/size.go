package cache

import "encoding/json"

// Sizer is implemented by values that know their own footprint.
type Sizer interface {
	SizeBytes() int64
}

// EstimateSize approximates the memory footprint of v.
// Byte slices and strings report their length, Sizer values report their own
// size, and everything else reports the length of its JSON encoding.
// Values that cannot be encoded count as zero.
func EstimateSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case []byte:
		return int64(len(val))
	case string:
		return int64(len(val))
	case Sizer:
		return val.SizeBytes()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
