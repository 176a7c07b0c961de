package diagram

import "encoding/json"

// ComplexityLevel buckets a spec by its total element count.
type ComplexityLevel string

const (
	LevelSimple      ComplexityLevel = "simple"       // fewer than 20 elements
	LevelModerate    ComplexityLevel = "moderate"     // fewer than 100
	LevelComplex     ComplexityLevel = "complex"      // fewer than 500
	LevelVeryComplex ComplexityLevel = "very_complex" // 500 or more
)

// ComplexityReport describes the size of a spec.
type ComplexityReport struct {
	NodeCount      int             `json:"nodeCount"`
	EdgeCount      int             `json:"edgeCount"`
	GroupCount     int             `json:"groupCount"`
	TotalElements  int             `json:"totalElements"`
	EstimatedBytes int             `json:"estimatedBytes"`
	Level          ComplexityLevel `json:"complexity"`
}

// Complexity reports element counts, the serialized size and a level for
// spec. A nil spec reports zero elements.
func Complexity(spec *Spec) ComplexityReport {
	if spec == nil {
		return ComplexityReport{Level: LevelSimple}
	}

	r := ComplexityReport{
		NodeCount:  len(spec.Nodes),
		EdgeCount:  len(spec.Edges),
		GroupCount: len(spec.Groups),
	}
	r.TotalElements = r.NodeCount + r.EdgeCount + r.GroupCount
	r.Level = levelFor(r.TotalElements)

	if data, err := json.Marshal(spec); err == nil {
		r.EstimatedBytes = len(data)
	}
	return r
}

func levelFor(total int) ComplexityLevel {
	switch {
	case total < 20:
		return LevelSimple
	case total < 100:
		return LevelModerate
	case total < 500:
		return LevelComplex
	default:
		return LevelVeryComplex
	}
}
