package diagram

import "math"

// Optimize returns a copy of spec with default-valued fields cleared,
// positions rounded to two decimals and empty groups removed. spec is not
// modified. Optimize(nil) returns nil.
func Optimize(spec *Spec) *Spec {
	if spec == nil {
		return nil
	}

	out := &Spec{
		Version:   spec.Version,
		Title:     spec.Title,
		Direction: stripDefault(spec.Direction, DefaultDirection),
	}

	if spec.Nodes != nil {
		out.Nodes = make([]Node, len(spec.Nodes))
		for i, n := range spec.Nodes {
			n.Shape = stripDefault(n.Shape, DefaultShape)
			if n.Position != nil {
				n.Position = &Position{X: round2(n.Position.X), Y: round2(n.Position.Y)}
			}
			out.Nodes[i] = n
		}
	}

	if spec.Edges != nil {
		out.Edges = make([]Edge, len(spec.Edges))
		for i, e := range spec.Edges {
			e.Style = stripDefault(e.Style, DefaultEdgeStyle)
			e.Arrow = stripDefault(e.Arrow, DefaultArrow)
			out.Edges[i] = e
		}
	}

	if spec.Groups != nil {
		out.Groups = make([]Group, 0, len(spec.Groups))
		for _, g := range spec.Groups {
			if len(g.NodeIDs) == 0 {
				continue
			}
			g.NodeIDs = append([]string(nil), g.NodeIDs...)
			out.Groups = append(out.Groups, g)
		}
	}

	return out
}

func stripDefault(v, def string) string {
	if v == def {
		return ""
	}
	return v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
