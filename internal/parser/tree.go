package parser

import (
	"context"
	"fmt"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
	"github.com/vthunder/grass/internal/profiling"
)

// task asks the tree to match the span starting at idx, extended by size.
type task struct {
	idx, size int
}

// revocation identifies a match overturned by validation.
type revocation struct {
	column, layer int
	concept       string
}

// Tree is a multi-layer parse of one token sequence. Layer 0 holds the
// tokens; every higher layer holds matches built from the layers below.
//
// Work is driven by two explicit stacks: the call stack of pending match
// tasks and the validation stack of tree roots whose columns should be
// re-checked. Run drains validation first.
type Tree struct {
	engine *Engine
	cfg    Config
	runID  string

	arena  []Match
	layers [][]MatchID

	calls       []task
	validation  []int
	roots       []int
	ambiguities []Ambiguity
	revoked     map[revocation]struct{}
}

func newTree(e *Engine) *Tree {
	return &Tree{
		engine:  e,
		cfg:     e.cfg,
		runID:   profiling.NewRunID(),
		layers:  [][]MatchID{nil},
		revoked: make(map[revocation]struct{}),
	}
}

// AddWord appends a token. Every layer grows by one cell; only the layer-0
// cell is filled.
func (t *Tree) AddWord(token string) {
	col := len(t.layers[0])
	id := t.newMatch(Match{Layer: 0, Column: col, Size: 1, Concept: token})
	t.layers[0] = append(t.layers[0], id)
	for l := 1; l < len(t.layers); l++ {
		t.layers[l] = append(t.layers[l], NoMatch)
	}
}

// Len returns the number of tokens.
func (t *Tree) Len() int {
	return len(t.layers[0])
}

// Run parses from the first position until no work is pending. ctx is
// checked between steps. A *ParseBug aborts the run and discards pending
// work; the layers built so far are kept.
func (t *Tree) Run(ctx context.Context) error {
	defer profiling.Get().Start(t.runID, "parser.run")()

	t.calls = append(t.calls, task{0, 0})
	steps := 0
	for len(t.validation) > 0 || len(t.calls) > 0 {
		if err := ctx.Err(); err != nil {
			t.reset()
			return fmt.Errorf("parse interrupted: %w", err)
		}
		steps++
		if t.cfg.MaxSteps > 0 && steps > t.cfg.MaxSteps {
			var span Span
			if n := len(t.calls); n > 0 {
				span = Span{Start: t.calls[n-1].idx, Size: t.calls[n-1].size}
			}
			t.reset()
			return &ParseBug{
				Kind:   BugStepBudget,
				Span:   span,
				Detail: fmt.Sprintf("no fixed point after %d steps", t.cfg.MaxSteps),
			}
		}

		var err error
		if n := len(t.validation); n > 0 {
			idx := t.validation[n-1]
			t.validation = t.validation[:n-1]
			err = t.validateColumn(idx)
		} else {
			n := len(t.calls)
			next := t.calls[n-1]
			t.calls = t.calls[:n-1]
			err = t.match(next.idx, next.size)
		}
		if err != nil {
			t.reset()
			return err
		}
	}

	logging.Debug("parser", "Run settled after %d steps, %d layers", steps, len(t.layers))
	return nil
}

func (t *Tree) reset() {
	t.calls = t.calls[:0]
	t.validation = t.validation[:0]
}

// match tries to cover the span idx..idx+size with one pattern.
func (t *Tree) match(idx, size int) error {
	n := t.Len()
	if idx >= n {
		return nil
	}
	if idx+size+1 > n {
		return &ParseBug{
			Kind:   BugSpanExceedsInput,
			Span:   Span{Start: idx, Size: size},
			Detail: fmt.Sprintf("input has %d tokens", n),
		}
	}
	if profiling.Get().ShouldProfile(profiling.LevelDetailed) {
		defer profiling.Get().Start(t.runID, "parser.match")()
	}

	logging.Debug("parser", "Matching %d %d", idx, size)

	var matches []MatchID
	var concepts []string
	cur := idx
	for cur <= idx+size {
		id := t.top(cur)
		matches = append(matches, id)
		concepts = append(concepts, t.arena[id].Concept)
		cur += t.arena[id].Size
	}
	concepts = t.appendContext(concepts, cur)

	res, err := t.lookup(idx, size, concepts)
	if err != nil {
		return err
	}

	if _, ok := best(res); !ok {
		logging.Debug("parser", "Can't expand %v, starting a new tree at %d", concepts, idx)
		if len(t.roots) > 0 {
			t.validation = append(t.validation, t.roots[len(t.roots)-1])
		}
		t.roots = append(t.roots, idx)
		t.calls = append(t.calls, task{cur, 0})
		return nil
	}

	logging.Debug("parser", "Found %v", head(res, 3))

	winner := res[0].Concept
	pattern, err := t.engine.catalogue.Pattern(winner)
	if err != nil {
		return &ParseBug{
			Kind:       BugUnknownPattern,
			Span:       Span{Start: idx, Size: size},
			Concepts:   concepts,
			Candidates: res,
			Detail:     err.Error(),
		}
	}
	if len(pattern.Slots) < len(matches) {
		return &ParseBug{
			Kind:       BugTooFewSlots,
			Span:       Span{Start: idx, Size: size},
			Concepts:   concepts,
			Candidates: res,
			Detail:     fmt.Sprintf("%s has %d slots for %d matches", winner, len(pattern.Slots), len(matches)),
		}
	}

	newIdx := idx
	for i, id := range matches {
		if t.engine.hierarchy.IsSubconcept(t.arena[id].Concept, pattern.Slots[i]) {
			newIdx += t.arena[id].Size
			continue
		}
		logging.Debug("parser", "%s does not fit slot %d of %s", t.arena[id].Concept, i, winner)
		if newIdx == idx {
			// nothing lines up: give up on this start position
			if len(t.roots) > 0 {
				t.validation = append(t.validation, t.roots[len(t.roots)-1])
			}
			if len(t.calls) == 0 {
				t.roots = append(t.roots, idx)
			}
			t.calls = append(t.calls, task{idx + size + 1, 0})
			return nil
		}
		// match further first, then come back to this span
		t.calls = append(t.calls, task{idx, size}, task{newIdx, 0})
		return nil
	}

	if len(pattern.Slots) > len(matches) {
		extended := t.spanOf(matches)
		if idx+extended+1 > n {
			logging.Debug("parser", "%s needs more input after %d", winner, idx+extended)
			return nil
		}
		logging.Debug("parser", "Expanding match")
		t.calls = append(t.calls, task{idx, extended})
		return nil
	}

	layer := 0
	for _, id := range matches {
		if l := t.arena[id].Layer; l > layer {
			layer = l
		}
	}
	layer++
	for layer >= len(t.layers) {
		empty := make([]MatchID, n)
		for i := range empty {
			empty[i] = NoMatch
		}
		t.layers = append(t.layers, empty)
	}

	id := t.newMatch(Match{
		Layer:    layer,
		Column:   idx,
		Size:     t.spanOf(matches),
		Concept:  winner,
		Children: matches,
	})
	t.layers[layer][idx] = id

	if len(res) > 1 {
		t.ambiguities = insertAmbiguity(t.ambiguities, Ambiguity{
			Margin: round2(res[0].Score - res[1].Score),
			Match:  id,
		}, t.cfg.AmbiguityCapacity)
	}

	if len(t.calls) > 0 {
		logging.Debug("parser", "Matched %s at %d, returning back", winner, idx)
		return nil
	}
	logging.Debug("parser", "Matched %s at %d, expanding up", winner, idx)
	t.calls = append(t.calls, task{idx, size})
	return nil
}

// appendContext adds up to Lookahead top-most concepts starting at column cur.
func (t *Tree) appendContext(concepts []string, cur int) []string {
	for i := 0; i < t.cfg.Lookahead && cur < t.Len(); i++ {
		id := t.top(cur)
		concepts = append(concepts, t.arena[id].Concept)
		cur += t.arena[id].Size
	}
	return concepts
}

// lookup primes a fresh energy map around the span and ranks patterns for
// concepts placed at consecutive slots.
func (t *Tree) lookup(idx, size int, concepts []string) ([]graph.Candidate, error) {
	g := t.engine.graph
	em := graph.NewEnergyMap(g)
	propagation := map[graph.EdgeType]float64{
		graph.EdgePattern: t.cfg.PatternPropagation,
		graph.EdgeParent:  t.cfg.ParentPropagation,
	}

	lo := max(idx-t.cfg.ContextRadius, 0)
	hi := min(t.Len(), idx+size+1+t.cfg.ContextRadius)
	for col := lo; col < hi; col++ {
		for l := range t.layers {
			id := t.layers[l][col]
			if id == NoMatch {
				continue
			}
			em.AddEnergy(t.arena[id].Concept, t.cfg.ContextEnergy, propagation, false)
		}
	}
	em.ReversePropagate(t.cfg.ReverseFactor)
	em.Set(knowledge.Terminator, 0)

	indices := make([]int, len(concepts))
	for i := range indices {
		indices[i] = i
	}
	opts := graph.LookupOptions{
		Indices: indices,
		Depth:   t.cfg.LookupDepth,
		DepthDecay: map[graph.EdgeType]float64{
			graph.EdgePattern: t.cfg.PatternDepthDecay,
			graph.EdgeParent:  t.cfg.ParentDepthDecay,
		},
		IndexMismatchPenalty: t.cfg.IndexMismatchPenalty,
		Energy:               em,
		ResultTypes:          graph.Types(graph.EdgePattern),
		TransitionTypes:      graph.Types(graph.EdgeParent, graph.EdgePattern),
	}
	res, err := g.Lookup(concepts, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %v: %w", concepts, err)
	}
	return res, nil
}

// top returns the highest filled cell of column col.
func (t *Tree) top(col int) MatchID {
	for l := len(t.layers) - 1; l > 0; l-- {
		if id := t.layers[l][col]; id != NoMatch {
			return id
		}
	}
	return t.layers[0][col]
}

func (t *Tree) spanOf(ids []MatchID) int {
	total := 0
	for _, id := range ids {
		total += t.arena[id].Size
	}
	return total
}

func (t *Tree) newMatch(m Match) MatchID {
	t.arena = append(t.arena, m)
	return MatchID(len(t.arena) - 1)
}

// best returns the winning candidate. A top score of zero or less is a miss.
func best(res []graph.Candidate) (graph.Candidate, bool) {
	if len(res) == 0 || res[0].Score <= 0 {
		return graph.Candidate{}, false
	}
	return res[0], true
}

func head(c []graph.Candidate, n int) []graph.Candidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}
