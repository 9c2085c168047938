package parser

import (
	"fmt"
	"strings"
)

// Layers returns a copy of the layer grid. Unfilled cells are NoMatch.
func (t *Tree) Layers() [][]MatchID {
	out := make([][]MatchID, len(t.layers))
	for i, layer := range t.layers {
		out[i] = append([]MatchID(nil), layer...)
	}
	return out
}

// Match returns the match stored under id.
func (t *Tree) Match(id MatchID) (Match, bool) {
	if id < 0 || int(id) >= len(t.arena) {
		return Match{}, false
	}
	m := t.arena[id]
	m.Children = append([]MatchID(nil), m.Children...)
	return m, true
}

// Cell returns the match at layer, col or NoMatch.
func (t *Tree) Cell(layer, col int) MatchID {
	if layer < 0 || layer >= len(t.layers) || col < 0 || col >= t.Len() {
		return NoMatch
	}
	return t.layers[layer][col]
}

// Row returns the concepts of one layer, "" for unfilled cells.
func (t *Tree) Row(layer int) []string {
	if layer < 0 || layer >= len(t.layers) {
		return nil
	}
	row := make([]string, t.Len())
	for col, id := range t.layers[layer] {
		if id != NoMatch {
			row[col] = t.arena[id].Concept
		}
	}
	return row
}

// Roots returns the columns at which a new tree was started, in order.
func (t *Tree) Roots() []int {
	return append([]int(nil), t.roots...)
}

// Ambiguities returns the closest calls made so far, smallest margin first.
func (t *Tree) Ambiguities() []Ambiguity {
	return append([]Ambiguity(nil), t.ambiguities...)
}

// FullSpan returns the highest match covering every token.
func (t *Tree) FullSpan() (Match, bool) {
	if t.Len() == 0 {
		return Match{}, false
	}
	for l := len(t.layers) - 1; l > 0; l-- {
		id := t.layers[l][0]
		if id != NoMatch && t.arena[id].Size == t.Len() {
			return t.Match(id)
		}
	}
	return Match{}, false
}

// Covering returns every committed match of concept, lowest layer first.
func (t *Tree) Covering(concept string) []Match {
	var out []Match
	for _, layer := range t.layers {
		for _, id := range layer {
			if id != NoMatch && t.arena[id].Concept == concept {
				m, _ := t.Match(id)
				out = append(out, m)
			}
		}
	}
	return out
}

// Concepts returns every distinct recognised concept above the input
// layer, top layer first and left to right within a layer.
func (t *Tree) Concepts() []string {
	seen := make(map[string]bool)
	var out []string
	for l := len(t.layers) - 1; l > 0; l-- {
		for _, id := range t.layers[l] {
			if id == NoMatch {
				continue
			}
			c := t.arena[id].Concept
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// String renders the grid one layer per line, top layer last.
func (t *Tree) String() string {
	var sb strings.Builder
	for l, layer := range t.layers {
		fmt.Fprintf(&sb, "%d:", l)
		for _, id := range layer {
			if id == NoMatch {
				sb.WriteString(" -")
				continue
			}
			m := t.arena[id]
			fmt.Fprintf(&sb, " %s/%d", m.Concept, m.Size)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
