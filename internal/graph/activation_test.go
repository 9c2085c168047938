package graph

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// chain builds n0 -> n1 -> ... -> n(length-1) with edges of type typ.
func chain(length int, typ EdgeType) *Graph {
	g := New()
	for i := 0; i+1 < length; i++ {
		g.UpdateEdge(NewEdge(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1), typ), 1.0)
	}
	return g
}

// TestAddEnergyIsolatedNode tests that a node without outgoing edges keeps exactly what it gets
func TestAddEnergyIsolatedNode(t *testing.T) {
	g := New(NewEdge("other", "node", EdgeParent))
	m := NewEnergyMap(g)

	m.AddEnergy("node", 0.7, map[EdgeType]float64{EdgeParent: 1.0}, true)

	if got := m.Energy("node"); got != 0.7 {
		t.Errorf("Expected energy 0.7, got %f", got)
	}
	if got := m.Energy("other"); got != 0 {
		t.Errorf("Expected forward propagation to leave the source untouched, got %f", got)
	}
}

// TestAddEnergyAttenuates tests that energy falls off with distance and stops below the threshold
func TestAddEnergyAttenuates(t *testing.T) {
	g := chain(8, EdgeParent)
	m := NewEnergyMap(g)

	m.AddEnergy("n0", 1.0, map[EdgeType]float64{EdgeParent: 0.5}, true)

	want := map[string]float64{
		"n0": 1,
		"n1": 0.5,
		"n2": 0.25,
		"n3": 0.125,
		"n4": 0.0625,
		"n5": 0.03125, // charged, but too weak to expand
		"n6": 0,
		"n7": 0,
	}
	for node, e := range want {
		if got := m.Energy(node); got != e {
			t.Errorf("%s: expected %f, got %f", node, e, got)
		}
	}
}

// TestAddEnergyHopLimit tests that energy never travels further than MaxHops
func TestAddEnergyHopLimit(t *testing.T) {
	g := chain(MaxHops+4, EdgeParent)
	m := NewEnergyMap(g)

	m.AddEnergy("n0", 1.0, map[EdgeType]float64{EdgeParent: 1.0}, true)

	for i := 0; i < MaxHops+4; i++ {
		node := fmt.Sprintf("n%d", i)
		want := 0.0
		if i <= MaxHops {
			want = 1.0
		}
		if got := m.Energy(node); got != want {
			t.Errorf("%s: expected %f, got %f", node, want, got)
		}
	}
}

// TestAddEnergyCycle tests that propagation terminates on cycles without amplifying
func TestAddEnergyCycle(t *testing.T) {
	g := New(
		NewEdge("A", "B", EdgeParent),
		NewEdge("B", "C", EdgeParent),
		NewEdge("C", "A", EdgeParent),
	)
	m := NewEnergyMap(g)

	m.AddEnergy("A", 1.0, map[EdgeType]float64{EdgeParent: 1.0}, true)

	for _, node := range []string{"A", "B", "C"} {
		got := m.Energy(node)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("%s: energy not finite: %f", node, got)
		}
		if got <= 0 || got > 1.0+1e-12 {
			t.Errorf("%s: expected energy in (0, 1], got %f", node, got)
		}
	}
}

// TestAddEnergyIgnoresUnlistedTypes tests that edge types without a propagation factor carry nothing
func TestAddEnergyIgnoresUnlistedTypes(t *testing.T) {
	g := New(
		NewEdge("A", "B", EdgeReaction),
		PatternEdge("A", "P", 0),
	)
	m := NewEnergyMap(g)

	m.AddEnergy("A", 1.0, map[EdgeType]float64{EdgePattern: 0.8}, true)

	if got := m.Energy("B"); got != 0 {
		t.Errorf("Expected no energy across reaction edge, got %f", got)
	}
	if got := m.Energy("P"); !approxEqual(got, 0.8) {
		t.Errorf("Expected 0.8 across pattern edge, got %f", got)
	}
}

// TestUncommittedEnergy tests the uncommitted buffer and reverse propagation
func TestUncommittedEnergy(t *testing.T) {
	g := New(PatternEdge("W", "P", 0))
	m := NewEnergyMap(g)

	m.AddEnergy("W", 0.3, map[EdgeType]float64{EdgePattern: 0.8}, false)

	if got := m.Energy("W"); got != 0 {
		t.Errorf("Expected nothing committed yet, got %f", got)
	}
	pending := m.Uncommitted()
	if !approxEqual(pending["W"], 0.3) || !approxEqual(pending["P"], 0.24) {
		t.Fatalf("Unexpected uncommitted energy: %v", pending)
	}

	m.ReversePropagate(1.0)

	if len(m.Uncommitted()) != 0 {
		t.Error("Expected uncommitted energy to be cleared")
	}
	if got := m.Energy("P"); !approxEqual(got, 0.24) {
		t.Errorf("P: expected 0.24, got %f", got)
	}
	// W keeps its own charge and receives P's charge back through the reverse edge
	if got := m.Energy("W"); !approxEqual(got, 0.54) {
		t.Errorf("W: expected 0.54, got %f", got)
	}
}

// TestReversePropagatePrimesSiblings tests that reverse propagation reaches other slots of a pattern
func TestReversePropagatePrimesSiblings(t *testing.T) {
	g := New(
		PatternEdge("my", "Kin", 0),
		PatternEdge("brother", "Kin", 1),
	)
	m := NewEnergyMap(g)

	m.AddEnergy("my", 0.3, map[EdgeType]float64{EdgePattern: 0.8}, false)
	m.ReversePropagate(1.0)

	if m.Energy("brother") <= 0 {
		t.Error("Expected the unseen slot to be primed")
	}
	if m.Energy("Kin") <= 0 {
		t.Error("Expected the pattern to hold energy")
	}
}

// TestReversePropagateRootsShareAncestors tests that a later root carries
// its surplus past an ancestor an earlier root already expanded
func TestReversePropagateRootsShareAncestors(t *testing.T) {
	g := New(
		NewEdge("Y", "X", EdgeParent),
		NewEdge("X", "R1", EdgeParent),
		NewEdge("X", "R2", EdgeParent),
	)
	m := NewEnergyMap(g)
	none := map[EdgeType]float64{}
	m.AddEnergy("R1", 0.1, none, false)
	m.AddEnergy("R2", 0.5, none, false)
	m.ReversePropagate(1.0)

	if got := m.Energy("X"); !approxEqual(got, 0.5) {
		t.Errorf("X: expected 0.1 + 0.4, got %f", got)
	}
	if got := m.Energy("Y"); !approxEqual(got, 0.4) {
		t.Errorf("Y: expected 0.1 + 0.3, got %f", got)
	}
}

// TestTopAndReset tests ranking and clearing of energies
func TestTopAndReset(t *testing.T) {
	g := New()
	m := NewEnergyMap(g)
	m.Set("low", 0.1)
	m.Set("high", 0.9)
	m.Set("tie-first", 0.5)
	m.Set("tie-second", 0.5)
	m.Set("zero", 0)

	want := []Candidate{
		{Concept: "high", Score: 0.9},
		{Concept: "tie-first", Score: 0.5},
		{Concept: "tie-second", Score: 0.5},
	}
	if diff := cmp.Diff(want, m.Top(3)); diff != "" {
		t.Errorf("Top mismatch (-want +got):\n%s", diff)
	}
	if got := len(m.Top(0)); got != 4 {
		t.Errorf("Expected 4 positive energies, got %d", got)
	}

	m.Reset()
	if len(m.Top(0)) != 0 {
		t.Error("Expected empty map after Reset")
	}
}

// TestAddEnergyHonoursDecay tests that injected energy is scaled by the global decay factor
func TestAddEnergyHonoursDecay(t *testing.T) {
	g := New()
	g.Decay(0.5)
	m := NewEnergyMap(g)

	m.AddEnergy("node", 1.0, nil, true)

	if got := m.Energy("node"); got != 2.0 {
		t.Errorf("Expected energy scaled to 2.0, got %f", got)
	}
}
