package graph

import (
	"errors"
	"fmt"
)

// EdgeType defines the type of relationship between two concepts.
// The set is open; the parser only relies on the predefined ones below.
type EdgeType string

const (
	// EdgePattern links a slot concept to the composite pattern it belongs to.
	// Start occupies position Index of End.
	EdgePattern EdgeType = "pattern"

	// EdgeParent links a concept to a direct superconcept (start is-a end).
	EdgeParent EdgeType = "parent"

	// EdgeReaction links an event concept to a task that reacts to it.
	EdgeReaction EdgeType = "reaction"
)

// NoIndex marks an edge as position-independent.
const NoIndex = -1

// Traversal limits shared by lookup and energy propagation.
const (
	DefaultMaxFanOut = 100  // neighbours visited per node
	MaxHops          = 5    // energy never travels further than this from its source
	MinEnergy        = 0.05 // below this a node is charged but not expanded
	MaxResults       = 10   // candidates returned by Lookup
)

// ErrArgumentMismatch is returned by Lookup when indices or weights do not
// line up with the seed nodes.
var ErrArgumentMismatch = errors.New("graph: seeds, indices and weights must have equal length")

// EdgeID addresses an edge in the graph's edge arena.
type EdgeID int32

// Edge is an immutable directed, typed link between two concepts.
type Edge struct {
	Start string   `json:"start" yaml:"start"`
	End   string   `json:"end" yaml:"end"`
	Type  EdgeType `json:"type" yaml:"type"`
	Index int      `json:"index" yaml:"index"`
}

// NewEdge creates a position-independent edge.
func NewEdge(start, end string, typ EdgeType) Edge {
	return Edge{Start: start, End: end, Type: typ, Index: NoIndex}
}

// PatternEdge creates an edge placing slot at position index of pattern.
func PatternEdge(slot, pattern string, index int) Edge {
	return Edge{Start: slot, End: pattern, Type: EdgePattern, Index: index}
}

// String returns a human-readable representation of the edge.
func (e Edge) String() string {
	if e.Index == NoIndex {
		return fmt.Sprintf("%s-%s->%s", e.Start, e.Type, e.End)
	}
	return fmt.Sprintf("%s-%s[%d]->%s", e.Start, e.Type, e.Index, e.End)
}

// Neighbor is one adjacency entry resolved for callers: the concept on the
// other side of the edge, the edge itself and its priority.
type Neighbor struct {
	ID       string
	Edge     Edge
	Priority float64
}

// Weight returns the association strength encoded by the priority.
func (n Neighbor) Weight() float64 {
	return -n.Priority
}

// Candidate is one ranked Lookup result.
type Candidate struct {
	Concept string  `json:"concept"`
	Score   float64 `json:"score"`
}

// TypeSet is a set of edge types.
type TypeSet map[EdgeType]struct{}

// Types builds a TypeSet.
func Types(types ...EdgeType) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set. A nil set contains nothing.
func (s TypeSet) Has(t EdgeType) bool {
	_, ok := s[t]
	return ok
}
