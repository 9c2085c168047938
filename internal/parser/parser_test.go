package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
)

func words(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		out = append(out, "Word_"+w)
	}
	return out
}

func referenceEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngineFromBundle(knowledge.Reference(), DefaultConfig())
}

func parse(t *testing.T, e *Engine, sentence string) *Tree {
	t.Helper()
	tree, err := e.Parse(context.Background(), words(sentence))
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v\n%s", sentence, err, tree)
	}
	return tree
}

// TestEngineCompile tests how the catalogue and hierarchy become graph edges
func TestEngineCompile(t *testing.T) {
	e := referenceEngine(t)
	g := e.Graph()

	// pattern edges win over the hierarchy link between the same concepts
	fwd := g.Forward("RelativeBrother")
	var toLiving []graph.Edge
	for _, n := range fwd {
		if n.ID == "LivingEntity" {
			toLiving = append(toLiving, n.Edge)
		}
	}
	if len(toLiving) != 1 || toLiving[0].Type != graph.EdgePattern || toLiving[0].Index != 1 {
		t.Errorf("Expected a single pattern edge RelativeBrother->LivingEntity, got %v", toLiving)
	}

	if !g.HasEdge("CraneBird", "LivingEntity") {
		t.Error("Expected hierarchy link CraneBird->LivingEntity")
	}
	if !g.HasEdge(knowledge.Terminator, "LivingEntityIsDoingProcess") {
		t.Error("Expected terminator edge")
	}
	if got := g.Size("LivingEntityIsDoingProcess"); got != 3 {
		t.Errorf("Expected size 3, got %d", got)
	}
	if got := g.Size("IsDoing"); got != 1 {
		t.Errorf("Expected word pattern size 1, got %d", got)
	}
}

// TestParseFullSentence tests that a well-formed sentence is covered by one pattern
func TestParseFullSentence(t *testing.T) {
	tree := parse(t, referenceEngine(t), "my brother is running")

	want := [][]string{
		{"Word_my", "Word_brother", "Word_is", "Word_running"},
		{"PossessivePronoun", "RelativeBrother", "IsDoing", "ProcessRunning"},
		{"LivingEntity", "", "", ""},
		{"LivingEntityIsDoingProcess", "", "", ""},
	}
	for l, row := range want {
		if diff := cmp.Diff(row, tree.Row(l)); diff != "" {
			t.Errorf("Layer %d mismatch (-want +got):\n%s", l, diff)
		}
	}
	if len(tree.Layers()) != len(want) {
		t.Errorf("Expected %d layers, got %d:\n%s", len(want), len(tree.Layers()), tree)
	}

	root, ok := tree.FullSpan()
	if !ok {
		t.Fatalf("Expected a full-span match:\n%s", tree)
	}
	if root.Concept != "LivingEntityIsDoingProcess" || root.Size != 4 {
		t.Errorf("Unexpected root %+v", root)
	}

	var children []string
	for _, id := range root.Children {
		m, ok := tree.Match(id)
		if !ok {
			t.Fatalf("Dangling child %d", id)
		}
		children = append(children, m.Concept)
	}
	if diff := cmp.Diff([]string{"LivingEntity", "IsDoing", "ProcessRunning"}, children); diff != "" {
		t.Errorf("Children mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{0}, tree.Roots()); diff != "" {
		t.Errorf("Roots mismatch (-want +got):\n%s", diff)
	}

	wantConcepts := []string{"LivingEntityIsDoingProcess", "LivingEntity", "PossessivePronoun", "RelativeBrother", "IsDoing", "ProcessRunning"}
	if diff := cmp.Diff(wantConcepts, tree.Concepts()); diff != "" {
		t.Errorf("Concepts mismatch (-want +got):\n%s", diff)
	}
}

// TestParseDisambiguatesByContext tests that the same word resolves differently in different sentences
func TestParseDisambiguatesByContext(t *testing.T) {
	e := referenceEngine(t)

	cases := []struct {
		sentence string
		layer1   []string
		root     string
	}{
		{
			sentence: "my brother is far",
			layer1:   []string{"PossessivePronoun", "RelativeBrother", "IsBeing", "DistanceFar"},
			root:     "LivingEntityIsBeingFar",
		},
		{
			sentence: "my home is far",
			layer1:   []string{"PossessivePronoun", "Home", "IsBeing", "DistanceFar"},
			root:     "NonLivingEntityIsBeingFar",
		},
	}
	for _, tc := range cases {
		t.Run(tc.sentence, func(t *testing.T) {
			tree := parse(t, e, tc.sentence)
			if diff := cmp.Diff(tc.layer1, tree.Row(1)); diff != "" {
				t.Errorf("Layer 1 mismatch (-want +got):\n%s", diff)
			}
			root, ok := tree.FullSpan()
			if !ok || root.Concept != tc.root {
				t.Errorf("Expected root %s, got %+v (%v)\n%s", tc.root, root, ok, tree)
			}
		})
	}
}

// TestParseReferenceSentences tests whole forests for sentences of the reference catalogue
func TestParseReferenceSentences(t *testing.T) {
	e := referenceEngine(t)

	cases := []struct {
		sentence string
		rows     [][]string // layers above the words
		root     string     // full-span concept, empty when there is none
		roots    []int
	}{
		{
			sentence: "i saw a crane",
			rows: [][]string{
				{"I", "SawPastAction", "IndefiniteArticleA", "ConstructionCrane"},
				{"", "", "IndefiniteEntityReference", ""},
				{"EntityDidActionWithEntity", "", "", ""},
			},
			root:  "EntityDidActionWithEntity",
			roots: []int{0, 2},
		},
		{
			sentence: "my brother saw a crane",
			rows: [][]string{
				{"PossessivePronoun", "RelativeBrother", "SawPastAction", "IndefiniteArticleA", "ConstructionCrane"},
				{"LivingEntity", "", "", "IndefiniteEntityReference", ""},
				{"EntityDidActionWithEntity", "", "", "", ""},
			},
			root:  "EntityDidActionWithEntity",
			roots: []int{0, 3},
		},
		{
			sentence: "a crane is far",
			rows: [][]string{
				{"IndefiniteArticleA", "ConstructionCrane", "IsBeing", "DistanceFar"},
				{"IndefiniteEntityReference", "", "", ""},
			},
			roots: []int{0, 2, 3},
		},
		{
			sentence: "the crane is far",
			rows: [][]string{
				{"DefiniteArticleThe", "CraneBird", "IsBeing", "DistanceFar"},
				{"", "LivingEntityIsBeingFar", "", ""},
			},
			roots: []int{0, 1},
		},
		{
			sentence: "i is running",
			rows: [][]string{
				{"I", "IsDoing", "ProcessRunning"},
				{"LivingEntityIsDoingProcess", "", ""},
			},
			root:  "LivingEntityIsDoingProcess",
			roots: []int{0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.sentence, func(t *testing.T) {
			tree := parse(t, e, tc.sentence)
			for i, row := range tc.rows {
				if diff := cmp.Diff(row, tree.Row(i+1)); diff != "" {
					t.Errorf("Layer %d mismatch (-want +got):\n%s", i+1, diff)
				}
			}
			if got := len(tree.Layers()) - 1; got != len(tc.rows) {
				t.Errorf("Expected %d layers above the words, got %d:\n%s", len(tc.rows), got, tree)
			}

			root, ok := tree.FullSpan()
			switch {
			case tc.root == "" && ok:
				t.Errorf("Expected no full-span match, got %s:\n%s", root.Concept, tree)
			case tc.root != "" && !ok:
				t.Errorf("Expected %s over the whole input:\n%s", tc.root, tree)
			case ok && (root.Concept != tc.root || root.Size != len(tree.Row(0))):
				t.Errorf("Unexpected root %+v", root)
			}
			if diff := cmp.Diff(tc.roots, tree.Roots()); diff != "" {
				t.Errorf("Roots mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParseMissingSense tests a gap when a word has no sense to start from
func TestParseMissingSense(t *testing.T) {
	e := NewEngineFromBundle(knowledge.Reference().Without("PossessivePronoun"), DefaultConfig())
	tree := parse(t, e, "my brother is running")

	if _, ok := tree.FullSpan(); ok {
		t.Fatalf("Expected no full-span match:\n%s", tree)
	}

	if diff := cmp.Diff([]string{"", "RelativeBrother", "IsDoing", "ProcessRunning"}, tree.Row(1)); diff != "" {
		t.Errorf("Layer 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "LivingEntityIsDoingProcess", "", ""}, tree.Row(2)); diff != "" {
		t.Errorf("Layer 2 mismatch (-want +got):\n%s", diff)
	}

	for l := 1; l < len(tree.Layers()); l++ {
		if tree.Cell(l, 0) != NoMatch {
			t.Errorf("Expected a gap at position 0 on layer %d", l)
		}
	}

	matches := tree.Covering("LivingEntityIsDoingProcess")
	if len(matches) != 1 || matches[0].Column != 1 || matches[0].Size != 3 {
		t.Errorf("Expected LivingEntityIsDoingProcess over positions 1..3, got %+v", matches)
	}
	if diff := cmp.Diff([]int{0, 1}, tree.Roots()); diff != "" {
		t.Errorf("Roots mismatch (-want +got):\n%s", diff)
	}
}

// TestParseNeedsMoreInput tests that a prefix stops cleanly when a longer pattern is expected
func TestParseNeedsMoreInput(t *testing.T) {
	tree := parse(t, referenceEngine(t), "my brother")

	root, ok := tree.FullSpan()
	if !ok || root.Concept != "LivingEntity" {
		t.Errorf("Expected LivingEntity over the whole input, got %+v\n%s", root, tree)
	}
}

// TestAmbiguityQueue tests that close calls are recorded smallest margin first
func TestAmbiguityQueue(t *testing.T) {
	tree := parse(t, referenceEngine(t), "my brother is running")

	amb := tree.Ambiguities()
	if len(amb) == 0 {
		t.Fatal("Expected ambiguities")
	}
	for i := 1; i < len(amb); i++ {
		if amb[i].Margin < amb[i-1].Margin {
			t.Errorf("Ambiguities out of order at %d: %v", i, amb)
		}
	}
	first, _ := tree.Match(amb[0].Match)
	if first.Concept != "IsDoing" {
		t.Errorf("Expected IsDoing/IsBeing to be the closest call, got %s (%v)", first.Concept, amb)
	}
	t.Logf("Ambiguities: %v", amb)
}

// TestInsertAmbiguity tests ordering and capacity of the ambiguity queue
func TestInsertAmbiguity(t *testing.T) {
	var q []Ambiguity
	for i, m := range []float64{0.5, 0.1, 0.9, 0.1, 0.3} {
		q = insertAmbiguity(q, Ambiguity{Margin: m, Match: MatchID(i)}, 3)
	}
	want := []Ambiguity{{0.1, 1}, {0.1, 3}, {0.3, 4}}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("Queue mismatch (-want +got):\n%s", diff)
	}
}

// TestValidationRevokesWrongMatch tests that validation overturns a match the context contradicts
func TestValidationRevokesWrongMatch(t *testing.T) {
	tree := referenceEngine(t).NewTree()
	for _, w := range words("my brother is running") {
		tree.AddWord(w)
	}

	force := func() MatchID {
		if len(tree.layers) < 2 {
			tree.layers = append(tree.layers, []MatchID{NoMatch, NoMatch, NoMatch, NoMatch})
		}
		id := tree.newMatch(Match{
			Layer:    1,
			Column:   0,
			Size:     1,
			Concept:  "Hobby",
			Children: []MatchID{tree.layers[0][0]},
		})
		tree.layers[1][0] = id
		return id
	}

	wrong := force()
	other := tree.layers[0][2]
	tree.ambiguities = []Ambiguity{{Margin: 0.05, Match: wrong}, {Margin: 0.1, Match: other}}
	if err := tree.validateColumn(0); err != nil {
		t.Fatalf("validateColumn failed: %v", err)
	}
	if tree.Cell(1, 0) != NoMatch {
		t.Errorf("Expected the wrong match to be revoked:\n%s", tree)
	}
	if diff := cmp.Diff([]Ambiguity{{Margin: 0.1, Match: other}}, tree.Ambiguities()); diff != "" {
		t.Errorf("Expected the revoked match to leave the queue (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]task{{0, 0}}, tree.calls, cmp.AllowUnexported(task{})); diff != "" {
		t.Errorf("Expected the column to be requeued (-want +got):\n%s", diff)
	}

	// the same decision is not overturned twice
	tree.calls = nil
	id := force()
	if err := tree.validateColumn(0); err != nil {
		t.Fatalf("validateColumn failed: %v", err)
	}
	if tree.Cell(1, 0) != id {
		t.Error("Expected a match revoked once to be kept")
	}
	if len(tree.calls) != 0 {
		t.Errorf("Expected no requeue, got %v", tree.calls)
	}
}

// TestBestIgnoresNonPositiveScores tests that a zero top score counts as no result
func TestBestIgnoresNonPositiveScores(t *testing.T) {
	cases := []struct {
		res  []graph.Candidate
		want graph.Candidate
		ok   bool
	}{
		{nil, graph.Candidate{}, false},
		{[]graph.Candidate{{Concept: "SawPastAction", Score: 0}}, graph.Candidate{}, false},
		{[]graph.Candidate{{Concept: "SawPastAction", Score: -0.2}}, graph.Candidate{}, false},
		{[]graph.Candidate{{Concept: "IsDoing", Score: 0.8}, {Concept: "IsBeing", Score: 0.6}}, graph.Candidate{Concept: "IsDoing", Score: 0.8}, true},
	}
	for i, tc := range cases {
		got, ok := best(tc.res)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Case %d: expected (%v, %v), got (%v, %v)", i, tc.want, tc.ok, got, ok)
		}
	}
}

// TestValidationKeepsUnscoredMatch tests that a match is kept when the repeated lookup finds nothing
func TestValidationKeepsUnscoredMatch(t *testing.T) {
	tree := referenceEngine(t).NewTree()
	tree.AddWord("Word_zzz")
	tree.layers = append(tree.layers, []MatchID{NoMatch})
	id := tree.newMatch(Match{Layer: 1, Column: 0, Size: 1, Concept: "Hobby", Children: []MatchID{tree.layers[0][0]}})
	tree.layers[1][0] = id

	if err := tree.validateColumn(0); err != nil {
		t.Fatalf("validateColumn failed: %v", err)
	}
	if tree.Cell(1, 0) != id {
		t.Errorf("Expected the match to be kept:\n%s", tree)
	}
	if len(tree.calls) != 0 {
		t.Errorf("Expected no requeue, got %v", tree.calls)
	}
}

// TestValidationKeepsCorrectMatch tests that a confirmed parse survives validation
func TestValidationKeepsCorrectMatch(t *testing.T) {
	tree := parse(t, referenceEngine(t), "my brother is running")
	before := tree.Layers()

	for col := 0; col < tree.Len(); col++ {
		if err := tree.validateColumn(col); err != nil {
			t.Fatalf("validateColumn(%d) failed: %v", col, err)
		}
	}
	if len(tree.calls) != 0 {
		t.Errorf("Expected nothing requeued, got %v", tree.calls)
	}
	if diff := cmp.Diff(before, tree.Layers()); diff != "" {
		t.Errorf("Validation changed a settled column (-before +after):\n%s", diff)
	}
}

// TestSpanExceedsInput tests the structural check on task spans
func TestSpanExceedsInput(t *testing.T) {
	tree := referenceEngine(t).NewTree()
	for _, w := range words("my brother is running") {
		tree.AddWord(w)
	}

	if err := tree.match(4, 0); err != nil {
		t.Errorf("Expected a task at the end of input to be a no-op, got %v", err)
	}

	err := tree.match(3, 2)
	var bug *ParseBug
	if !errors.As(err, &bug) {
		t.Fatalf("Expected *ParseBug, got %v", err)
	}
	if bug.Kind != BugSpanExceedsInput {
		t.Errorf("Expected %s, got %s", BugSpanExceedsInput, bug.Kind)
	}
	if bug.Span != (Span{Start: 3, Size: 2}) {
		t.Errorf("Unexpected span %+v", bug.Span)
	}
}

// TestTooFewSlots tests the structural check on pattern length
func TestTooFewSlots(t *testing.T) {
	cat := knowledge.NewCatalogue(knowledge.Pattern{Name: "Single", Slots: []string{"a"}})
	e := NewEngine(cat, knowledge.NewDictHierarchy(), DefaultConfig())
	tree := e.NewTree()
	tree.AddWord("a")
	tree.AddWord("b")

	err := tree.match(0, 1)
	var bug *ParseBug
	if !errors.As(err, &bug) {
		t.Fatalf("Expected *ParseBug, got %v", err)
	}
	if bug.Kind != BugTooFewSlots {
		t.Errorf("Expected %s, got %s", BugTooFewSlots, bug.Kind)
	}
	if diff := cmp.Diff([]string{"a", "b"}, bug.Concepts); diff != "" {
		t.Errorf("Concepts mismatch (-want +got):\n%s", diff)
	}
	if len(bug.Candidates) == 0 || bug.Candidates[0].Concept != "Single" {
		t.Errorf("Expected candidates to be reported, got %v", bug.Candidates)
	}
}

// TestStepBudget tests that a run which never settles is cut off
func TestStepBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 300
	e := NewEngineFromBundle(knowledge.Reference(), cfg)

	// NonLivingEntity is last defined as [PossessivePronoun, Home], so Hobby
	// never fits and the span is retried forever
	tree, err := e.Parse(context.Background(), words("my hobby is running"))
	var bug *ParseBug
	if !errors.As(err, &bug) {
		t.Fatalf("Expected *ParseBug, got %v", err)
	}
	if bug.Kind != BugStepBudget {
		t.Errorf("Expected %s, got %s", BugStepBudget, bug.Kind)
	}
	if tree.Len() != 4 || tree.Row(1)[0] != "PossessivePronoun" {
		t.Errorf("Expected the partial forest to be kept:\n%s", tree)
	}
	if len(tree.calls) != 0 || len(tree.validation) != 0 {
		t.Error("Expected pending work to be discarded")
	}
}

// TestRunCancelled tests that a cancelled context stops the run between steps
func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tree, err := referenceEngine(t).Parse(ctx, words("my brother is running"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(tree.Layers()) != 1 {
		t.Errorf("Expected no work done, got:\n%s", tree)
	}
}

// TestParseDeterministic tests that repeated parses build identical forests
func TestParseDeterministic(t *testing.T) {
	e := referenceEngine(t)
	first := parse(t, e, "my brother is running").String()
	for i := 0; i < 3; i++ {
		if got := parse(t, e, "my brother is running").String(); got != first {
			t.Fatalf("Parse %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
}

// TestEmptyInput tests a run with no tokens
func TestEmptyInput(t *testing.T) {
	tree, err := referenceEngine(t).Parse(context.Background(), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := tree.FullSpan(); ok {
		t.Error("Expected no full span for empty input")
	}
	if tree.String() != "0:\n" {
		t.Errorf("Unexpected rendering %q", tree.String())
	}
}
