package graph

import (
	"math"
	"sort"
)

// DefaultIndexMismatchPenalty is the fraction of score lost per slot of
// distance between a seed's index and the slot an edge declares.
const DefaultIndexMismatchPenalty = 0.5

// LookupOptions configures a Lookup. Build it with NewLookupOptions so the
// defaults are in place; a zero IndexMismatchPenalty disables the penalty.
type LookupOptions struct {
	// Indices holds the slot index of each seed. Required.
	Indices []int
	// Weights holds the caller weight of each seed; nil means 1 for all.
	Weights []float64
	// Depth is the number of traversal rounds.
	Depth int
	// DepthDecay is the fraction of weight lost when a transition crosses
	// an edge of the given type.
	DepthDecay map[EdgeType]float64
	// IndexMismatchPenalty is applied once per slot of index distance.
	IndexMismatchPenalty float64
	// Energy biases scores towards already active concepts. Nil means an
	// empty map.
	Energy *EnergyMap
	// ResultTypes are the edge types whose destinations are scored.
	ResultTypes TypeSet
	// TransitionTypes are the edge types followed into the next round.
	TransitionTypes TypeSet
}

// NewLookupOptions returns options for a one-round lookup of seeds placed
// at the given slot indices.
func NewLookupOptions(indices ...int) LookupOptions {
	return LookupOptions{
		Indices:              indices,
		Depth:                1,
		IndexMismatchPenalty: DefaultIndexMismatchPenalty,
		ResultTypes:          Types(EdgePattern),
	}
}

// walker is one frontier entry of a lookup.
type walker struct {
	node   string
	index  int
	weight float64
	exact  bool // only non-pattern transitions taken so far
}

// Lookup ranks the concepts the seeds jointly point at.
//
// Every round walks the forward adjacency of each frontier node. Edges of a
// result type add score to their destination: association strength times
// the walker's weight times (1 + destination energy), penalised for slot
// index mismatch and divided by the destination's pattern size. A mismatch
// involving slot 0 on either side contributes nothing, and a destination
// whose slot 0 was only ever reached at the wrong index scores 0. Edges of
// a transition type move the walker to the destination for the next round,
// keeping its slot index.
//
// The top MaxResults destinations are returned best first, seeds excluded.
// Unknown seeds simply contribute nothing.
func (g *Graph) Lookup(seeds []string, opts LookupOptions) ([]Candidate, error) {
	if len(opts.Indices) != len(seeds) {
		return nil, ErrArgumentMismatch
	}
	if opts.Weights != nil && len(opts.Weights) != len(seeds) {
		return nil, ErrArgumentMismatch
	}

	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}
	energy := opts.Energy
	if energy == nil {
		energy = NewEnergyMap(g)
	}

	frontier := make([]walker, len(seeds))
	for i, seed := range seeds {
		w := 1.0
		if opts.Weights != nil {
			w = opts.Weights[i]
		}
		frontier[i] = walker{node: seed, index: opts.Indices[i], weight: w, exact: true}
	}

	scores := make(map[string]float64)
	var order []string
	misplaced := make(map[string]bool) // slot 0 reached at the wrong index
	anchored := make(map[string]bool)  // slot 0 reached at index 0

	for round := 0; round < depth && len(frontier) > 0; round++ {
		var next []walker
		for _, p := range frontier {
			list := g.forward[p.node]
			limit := g.fanOut(list)
			for i := 0; i < limit; i++ {
				entry := list[i]
				e := g.edges[entry.edge]
				score := -entry.priority * p.weight * (1 + energy.Energy(e.End))

				if opts.ResultTypes.Has(e.Type) {
					penalty := 1.0
					if e.Index == 0 && p.index == 0 {
						anchored[e.End] = true
					}
					if e.Index != NoIndex && e.Index != p.index {
						if e.Index == 0 || p.index == 0 {
							// the anchor slot must line up
							penalty = 0
							misplaced[e.End] = true
						} else {
							penalty = math.Pow(1-opts.IndexMismatchPenalty, math.Abs(float64(e.Index-p.index)))
						}
					}
					if !p.exact {
						penalty *= 0.5
					}
					if _, seen := scores[e.End]; !seen {
						order = append(order, e.End)
					}
					scores[e.End] += score * penalty / float64(g.Size(e.End))
				}

				if opts.TransitionTypes.Has(e.Type) {
					next = append(next, walker{
						node:   e.End,
						index:  p.index,
						weight: p.weight * (1 - opts.DepthDecay[e.Type]),
						exact:  p.exact && e.Type != EdgePattern,
					})
				}
			}
		}
		frontier = next
	}

	ranked := make([]Candidate, 0, len(order))
	for _, concept := range order {
		s := scores[concept]
		if misplaced[concept] && !anchored[concept] {
			s = 0
		}
		ranked = append(ranked, Candidate{Concept: concept, Score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > MaxResults {
		ranked = ranked[:MaxResults]
	}

	isSeed := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		isSeed[s] = true
	}
	result := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if isSeed[c.Concept] {
			continue
		}
		corrected := c.Score - c.Score*(1-g.decayFactor)
		result = append(result, Candidate{Concept: c.Concept, Score: round3(corrected)})
	}
	return result, nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
