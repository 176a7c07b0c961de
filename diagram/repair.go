package diagram

import "strconv"

// Repair drops the parts of spec that reference nothing: nodes without an
// ID, duplicate node IDs (the first wins), edges whose endpoints are not
// nodes and group members that are not nodes. It returns the repaired spec
// and one Issue per dropped element. When nothing is dropped the original
// pointer is returned. spec is never modified.
func Repair(spec *Spec) (*Spec, []Issue) {
	if spec == nil {
		return nil, nil
	}

	var issues []Issue
	out := *spec

	ids := make(map[string]struct{}, len(spec.Nodes))
	out.Nodes = filter(spec.Nodes, func(i int, n Node) bool {
		if n.ID == "" {
			issues = append(issues, Issue{Path: path("nodes", i, "id"), Message: "node has no id; dropped"})
			return false
		}
		if _, dup := ids[n.ID]; dup {
			issues = append(issues, Issue{Path: path("nodes", i, "id"), Message: "duplicate node id " + strconv.Quote(n.ID) + "; dropped"})
			return false
		}
		ids[n.ID] = struct{}{}
		return true
	})

	out.Edges = filter(spec.Edges, func(i int, e Edge) bool {
		if _, ok := ids[e.From]; !ok {
			issues = append(issues, Issue{Path: path("edges", i, "from"), Message: "unknown node " + strconv.Quote(e.From) + "; edge dropped"})
			return false
		}
		if _, ok := ids[e.To]; !ok {
			issues = append(issues, Issue{Path: path("edges", i, "to"), Message: "unknown node " + strconv.Quote(e.To) + "; edge dropped"})
			return false
		}
		return true
	})

	groupsChanged := false
	groups := make([]Group, len(spec.Groups))
	for gi, g := range spec.Groups {
		members := filter(g.NodeIDs, func(mi int, id string) bool {
			if _, ok := ids[id]; ok {
				return true
			}
			issues = append(issues, Issue{Path: path("groups", gi, "nodeIds", mi), Message: "unknown node " + strconv.Quote(id) + "; member dropped"})
			return false
		})
		if len(members) != len(g.NodeIDs) {
			groupsChanged = true
			g.NodeIDs = members
		}
		groups[gi] = g
	}
	if groupsChanged {
		out.Groups = groups
	}

	if len(issues) == 0 {
		return spec, nil
	}
	return &out, issues
}

// filter returns s unchanged when keep accepts every element, and a new
// slice otherwise.
func filter[T any](s []T, keep func(int, T) bool) []T {
	var out []T
	changed := false
	for i, v := range s {
		if keep(i, v) {
			if changed {
				out = append(out, v)
			}
			continue
		}
		if !changed {
			changed = true
			out = append(make([]T, 0, len(s)), s[:i]...)
		}
	}
	if !changed {
		return s
	}
	return out
}

func path(parts ...any) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		}
	}
	return out
}
