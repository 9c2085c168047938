package parser

import (
	"math"
	"sort"
)

// MatchID addresses a Match in its tree's arena.
type MatchID int32

// NoMatch marks an unfilled cell.
const NoMatch MatchID = -1

// Match is one recognised constituent: concept spans Size layer-0
// positions starting at Column and sits on Layer. Layer 0 matches are the
// input tokens and have no children.
type Match struct {
	Layer    int
	Column   int
	Size     int
	Concept  string
	Children []MatchID
}

// Ambiguity records how narrowly a match beat its runner-up.
type Ambiguity struct {
	Margin float64
	Match  MatchID
}

// insertAmbiguity keeps queue ordered by ascending margin and at most
// capacity long.
func insertAmbiguity(queue []Ambiguity, a Ambiguity, capacity int) []Ambiguity {
	i := sort.Search(len(queue), func(i int) bool {
		return queue[i].Margin > a.Margin
	})
	queue = append(queue, Ambiguity{})
	copy(queue[i+1:], queue[i:])
	queue[i] = a
	if capacity > 0 && len(queue) > capacity {
		queue = queue[:capacity]
	}
	return queue
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
