package parser

import (
	"github.com/vthunder/grass/internal/logging"
	"github.com/vthunder/grass/internal/profiling"
)

// validateColumn re-checks the committed matches of column idx from the
// bottom up and stops at the first gap or revocation.
func (t *Tree) validateColumn(idx int) error {
	if idx < 0 || idx >= t.Len() {
		return nil
	}
	if profiling.Get().ShouldProfile(profiling.LevelDetailed) {
		defer profiling.Get().Start(t.runID, "parser.validate")()
	}

	for l := 1; l < len(t.layers); l++ {
		id := t.layers[l][idx]
		if id == NoMatch {
			break
		}
		revoked, err := t.validateMatch(idx, id)
		if err != nil {
			return err
		}
		if revoked {
			break
		}
	}
	return nil
}

// validateMatch repeats the lookup that produced id, now with the context
// that has been built since. When the match no longer wins it is cleared
// together with everything above it in the column and the column is queued
// for matching again. A match is revoked at most once.
func (t *Tree) validateMatch(idx int, id MatchID) (bool, error) {
	m := t.arena[id]

	concepts := make([]string, 0, len(m.Children)+t.cfg.Lookahead)
	for _, child := range m.Children {
		concepts = append(concepts, t.arena[child].Concept)
	}
	concepts = t.appendContext(concepts, idx+m.Size)

	res, err := t.lookup(idx, m.Size, concepts)
	if err != nil {
		return false, err
	}
	top, ok := best(res)
	if !ok || top.Concept == m.Concept {
		// still the winner, or no candidate scores at all
		return false, nil
	}

	key := revocation{column: idx, layer: m.Layer, concept: m.Concept}
	if _, again := t.revoked[key]; again {
		logging.Debug("parser", "Keeping %s at %d, already revoked once", m.Concept, idx)
		return false, nil
	}
	t.revoked[key] = struct{}{}

	logging.Debug("parser", "Revoking %s at %d (now %v)", m.Concept, idx, head(res, 3))
	cleared := make(map[MatchID]bool)
	for l := len(t.layers) - 1; l >= m.Layer; l-- {
		if c := t.layers[l][idx]; c != NoMatch {
			cleared[c] = true
		}
		t.layers[l][idx] = NoMatch
	}
	t.dropAmbiguities(cleared)
	t.calls = append(t.calls, task{idx, 0})
	return true, nil
}

// dropAmbiguities removes queue entries for matches no longer in the forest.
func (t *Tree) dropAmbiguities(cleared map[MatchID]bool) {
	kept := t.ambiguities[:0]
	for _, a := range t.ambiguities {
		if !cleared[a.Match] {
			kept = append(kept, a)
		}
	}
	t.ambiguities = kept
}
