package diagram

import "time"

// Defaults applied by renderers when a field is empty. Optimize strips
// fields equal to these values.
const (
	DefaultDirection = "TD"
	DefaultShape     = "rect"
	DefaultEdgeStyle = "solid"
	DefaultArrow     = "normal"
)

// Spec is a diagram document.
type Spec struct {
	Version   int     `json:"version,omitempty"`
	Title     string  `json:"title,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Nodes     []Node  `json:"nodes,omitempty"`
	Edges     []Edge  `json:"edges,omitempty"`
	Groups    []Group `json:"groups,omitempty"`
}

// Node is a single diagram vertex.
type Node struct {
	ID       string    `json:"id"`
	Label    string    `json:"label,omitempty"`
	Shape    string    `json:"shape,omitempty"`
	Position *Position `json:"position,omitempty"`
	Color    string    `json:"color,omitempty"`
}

// Position is a node's canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two nodes by ID.
type Edge struct {
	ID    string `json:"id,omitempty"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
	Style string `json:"style,omitempty"`
	Arrow string `json:"arrow,omitempty"`
}

// Group clusters nodes under a label.
type Group struct {
	ID      string   `json:"id"`
	Label   string   `json:"label,omitempty"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

// Summary is the list-view projection of a stored diagram.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	NodeCount int       `json:"nodeCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summarize projects spec into a Summary.
func Summarize(id, owner string, spec *Spec, updatedAt time.Time) Summary {
	s := Summary{ID: id, Owner: owner, UpdatedAt: updatedAt}
	if spec != nil {
		s.Title = spec.Title
		s.NodeCount = len(spec.Nodes)
	}
	return s
}
