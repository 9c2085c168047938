package graph

import (
	"sort"
)

// adjEntry is one slot of a priority-ordered adjacency list. Lower priority
// sorts first, so the strongest associations are visited first.
type adjEntry struct {
	priority float64
	edge     EdgeID
}

// Graph owns every edge of the associative concept graph. Edges live in a
// flat arena; each concept keeps a forward and a reverse adjacency list of
// handles into that arena.
//
// A Graph is not safe for concurrent use while edges are being inserted.
type Graph struct {
	edges    []Edge
	forward  map[string][]adjEntry
	reverse  map[string][]adjEntry
	incoming map[string]map[string]struct{}
	sizes    map[string]int

	decayFactor float64

	// MaxFanOut caps how many neighbours of a node are visited by lookup
	// and energy propagation.
	MaxFanOut int
}

// New creates a graph holding the given edges, each with weight 1.
func New(edges ...Edge) *Graph {
	g := &Graph{
		forward:     make(map[string][]adjEntry),
		reverse:     make(map[string][]adjEntry),
		incoming:    make(map[string]map[string]struct{}),
		sizes:       make(map[string]int),
		decayFactor: 1.0,
		MaxFanOut:   DefaultMaxFanOut,
	}
	for _, e := range edges {
		g.UpdateEdge(e, 1.0)
	}
	return g
}

// UpdateEdge inserts edge with the given weight into both adjacency lists.
//
// Only one forward edge may exist between two concepts: if edge.Start is
// already recorded as an incoming neighbour of edge.End the call is a no-op
// and returns false. The existing weight is kept; re-asserting a fact never
// scores it twice.
func (g *Graph) UpdateEdge(edge Edge, weight float64) bool {
	in, ok := g.incoming[edge.End]
	if !ok {
		in = make(map[string]struct{})
		g.incoming[edge.End] = in
	}
	if _, dup := in[edge.Start]; dup {
		return false
	}
	in[edge.Start] = struct{}{}

	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, edge)

	entry := adjEntry{priority: -weight / g.decayFactor, edge: id}
	g.forward[edge.Start] = g.insertSorted(g.forward[edge.Start], entry, false)
	g.reverse[edge.End] = g.insertSorted(g.reverse[edge.End], entry, true)
	return true
}

// insertSorted places entry into list keeping ascending order of
// (priority, other endpoint, type, index). The new entry goes after any
// entry that compares equal.
func (g *Graph) insertSorted(list []adjEntry, entry adjEntry, reversed bool) []adjEntry {
	i := sort.Search(len(list), func(i int) bool {
		return g.entryLess(entry, list[i], reversed)
	})
	list = append(list, adjEntry{})
	copy(list[i+1:], list[i:])
	list[i] = entry
	return list
}

func (g *Graph) entryLess(a, b adjEntry, reversed bool) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	ea, eb := g.edges[a.edge], g.edges[b.edge]
	oa, ob := ea.End, eb.End
	if reversed {
		oa, ob = ea.Start, eb.Start
	}
	if oa != ob {
		return oa < ob
	}
	if ea.Type != eb.Type {
		return ea.Type < eb.Type
	}
	return ea.Index < eb.Index
}

// Edge returns the edge stored under id.
func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// HasEdge reports whether a forward edge start->end exists.
func (g *Graph) HasEdge(start, end string) bool {
	_, ok := g.incoming[end][start]
	return ok
}

// Forward returns the outgoing neighbours of node, strongest first.
func (g *Graph) Forward(node string) []Neighbor {
	list := g.forward[node]
	out := make([]Neighbor, len(list))
	for i, entry := range list {
		e := g.edges[entry.edge]
		out[i] = Neighbor{ID: e.End, Edge: e, Priority: entry.priority}
	}
	return out
}

// Reverse returns the incoming neighbours of node, strongest first.
func (g *Graph) Reverse(node string) []Neighbor {
	list := g.reverse[node]
	out := make([]Neighbor, len(list))
	for i, entry := range list {
		e := g.edges[entry.edge]
		out[i] = Neighbor{ID: e.Start, Edge: e, Priority: entry.priority}
	}
	return out
}

// Nodes returns every concept that takes part in at least one edge, sorted.
func (g *Graph) Nodes() []string {
	seen := make(map[string]struct{}, len(g.forward)+len(g.reverse))
	for n := range g.forward {
		seen[n] = struct{}{}
	}
	for n := range g.reverse {
		seen[n] = struct{}{}
	}
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// SetSize records the slot count of a pattern concept. Lookup divides the
// score a pattern accumulates by its size.
func (g *Graph) SetSize(pattern string, size int) {
	g.sizes[pattern] = size
}

// Size returns the slot count of a pattern, or 1 when none was recorded.
func (g *Graph) Size(pattern string) int {
	if n, ok := g.sizes[pattern]; ok && n > 0 {
		return n
	}
	return 1
}

// Decay weakens everything already in the graph relative to what comes
// next. A factor of 0.1 means 10% decay. Newer edges get proportionally
// stronger priorities, injected energy is scaled up by the same amount and
// lookup scores are corrected back at the end.
func (g *Graph) Decay(factor float64) {
	g.decayFactor *= 1 - factor
}

// DecayFactor returns the accumulated global decay factor (1 = no decay).
func (g *Graph) DecayFactor() float64 {
	return g.decayFactor
}

// fanOut returns how many entries of list may be visited.
func (g *Graph) fanOut(list []adjEntry) int {
	if g.MaxFanOut > 0 && len(list) > g.MaxFanOut {
		return g.MaxFanOut
	}
	return len(list)
}
