package knowledge

import (
	"sort"

	"github.com/vthunder/grass/internal/graph"
)

// Hierarchy answers is-a questions about concepts.
type Hierarchy interface {
	// Parents returns concept itself plus all of its transitive
	// superconcepts, sorted.
	Parents(concept string) []string
	// IsSubconcept reports whether parent is concept or one of its ancestors.
	IsSubconcept(concept, parent string) bool
	// Links returns one child -> parent edge per direct relation.
	Links() []graph.Edge
}

// Family lists the direct children of one parent concept.
type Family struct {
	Parent   string   `yaml:"parent" json:"parent"`
	Children []string `yaml:"children" json:"children"`
}

// DictHierarchy is a Hierarchy backed by explicit parent/children lists.
// Declaration order is preserved for Links.
type DictHierarchy struct {
	families []Family
	parents  map[string][]string
}

// NewDictHierarchy builds a hierarchy from families in declaration order.
// Repeating a parent extends its children.
func NewDictHierarchy(families ...Family) *DictHierarchy {
	h := &DictHierarchy{parents: make(map[string][]string)}
	for _, f := range families {
		h.Add(f.Parent, f.Children...)
	}
	return h
}

// Add declares children as direct subconcepts of parent.
func (h *DictHierarchy) Add(parent string, children ...string) {
	idx := -1
	for i, f := range h.families {
		if f.Parent == parent {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.families = append(h.families, Family{Parent: parent})
		idx = len(h.families) - 1
	}
	for _, child := range children {
		h.families[idx].Children = append(h.families[idx].Children, child)
		h.parents[child] = append(h.parents[child], parent)
	}
}

// Families returns the declared families in order.
func (h *DictHierarchy) Families() []Family {
	out := make([]Family, len(h.families))
	for i, f := range h.families {
		out[i] = Family{Parent: f.Parent, Children: append([]string(nil), f.Children...)}
	}
	return out
}

// Parents returns concept plus every ancestor, sorted. Cycles are tolerated.
func (h *DictHierarchy) Parents(concept string) []string {
	seen := map[string]struct{}{concept: {}}
	stack := []string{concept}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range h.parents[c] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			stack = append(stack, p)
		}
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// IsSubconcept reports whether parent is concept or one of its ancestors.
func (h *DictHierarchy) IsSubconcept(concept, parent string) bool {
	if concept == parent {
		return true
	}
	for _, p := range h.Parents(concept) {
		if p == parent {
			return true
		}
	}
	return false
}

// Children returns the direct children of parent.
func (h *DictHierarchy) Children(parent string) []string {
	for _, f := range h.families {
		if f.Parent == parent {
			return append([]string(nil), f.Children...)
		}
	}
	return nil
}

// Links returns child -> parent edges in declaration order.
func (h *DictHierarchy) Links() []graph.Edge {
	var edges []graph.Edge
	for _, f := range h.families {
		for _, child := range f.Children {
			edges = append(edges, graph.NewEdge(child, f.Parent, graph.EdgeParent))
		}
	}
	return edges
}
