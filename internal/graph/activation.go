package graph

import (
	"sort"
)

// EnergyMap is a per-query activation snapshot over one Graph.
//
// Energy injected at a concept spreads along forward edges, each hop
// delivering -priority * energy * propagation[type] minus whatever the
// neighbour already received in the same pass. Propagation stops at MaxHops
// from the source, at nodes charged with less than MinEnergy, and at nodes
// already expanded in the pass, so it terminates on dense and cyclic graphs.
// The result is an approximate relaxation, not a fixed point.
//
// Injections are either committed straight into the long-lived energies or
// kept uncommitted until ReversePropagate pushes them back towards the
// concepts that point at them. Build a fresh map for every logical query.
type EnergyMap struct {
	graph *Graph

	energies map[string]float64
	order    []string

	uncommitted      map[string]float64
	uncommittedOrder []string

	// per-pass bookkeeping
	pass      map[string]float64
	passOrder []string
	expanded  map[string]struct{}
}

// NewEnergyMap creates an empty energy map over g.
func NewEnergyMap(g *Graph) *EnergyMap {
	return &EnergyMap{
		graph:       g,
		energies:    make(map[string]float64),
		uncommitted: make(map[string]float64),
	}
}

// spreadFrame is one node being expanded on the explicit propagation stack.
type spreadFrame struct {
	node   string
	energy float64
	depth  int
	next   int
}

// AddEnergy injects energy at node and spreads it forward. propagation
// gives the fraction carried across each edge type; types it does not name
// carry nothing.
func (m *EnergyMap) AddEnergy(node string, energy float64, propagation map[EdgeType]float64, commit bool) {
	m.pass = make(map[string]float64)
	m.passOrder = m.passOrder[:0]
	m.expanded = make(map[string]struct{})

	var stack []spreadFrame
	enter := func(node string, energy float64, depth int) {
		if depth > MaxHops {
			return
		}
		if _, ok := m.pass[node]; !ok {
			m.passOrder = append(m.passOrder, node)
		}
		m.pass[node] += energy
		if energy < MinEnergy {
			return
		}
		if _, done := m.expanded[node]; done {
			return
		}
		m.expanded[node] = struct{}{}
		stack = append(stack, spreadFrame{node: node, energy: energy, depth: depth})
	}

	enter(node, energy/m.graph.decayFactor, 0)
	for len(stack) > 0 {
		top := len(stack) - 1
		f := stack[top]
		list := m.graph.forward[f.node]
		if f.next >= m.graph.fanOut(list) {
			stack = stack[:top]
			continue
		}
		stack[top].next++

		entry := list[f.next]
		e := m.graph.edges[entry.edge]
		delta := -entry.priority*f.energy*propagation[e.Type] - m.pass[e.End]
		if delta <= 0 {
			continue
		}
		enter(e.End, delta, f.depth+1)
	}

	for _, n := range m.passOrder {
		if commit {
			m.commit(n, m.pass[n])
			continue
		}
		if _, ok := m.uncommitted[n]; !ok {
			m.uncommittedOrder = append(m.uncommittedOrder, n)
		}
		m.uncommitted[n] += m.pass[n]
	}
	m.pass = nil
	m.passOrder = m.passOrder[:0]
	m.expanded = nil
}

// ReversePropagate pushes every uncommitted charge backwards along reverse
// adjacency, scaled by factor per hop, and commits the result. This primes
// the patterns and ancestors a set of leaf tokens belongs to. Uncommitted
// state is cleared afterwards.
func (m *EnergyMap) ReversePropagate(factor float64) {
	received := make(map[string]float64, len(m.uncommitted))
	for _, n := range m.uncommittedOrder {
		received[n] -= m.uncommitted[n]
	}

	var stack []spreadFrame
	enter := func(node string, energy float64, depth int) {
		if depth > MaxHops {
			return
		}
		m.commit(node, energy)
		received[node] += energy
		if energy < MinEnergy {
			return
		}
		if _, done := m.expanded[node]; done {
			return
		}
		m.expanded[node] = struct{}{}
		stack = append(stack, spreadFrame{node: node, energy: energy, depth: depth})
	}

	for _, n := range m.uncommittedOrder {
		// each root spreads on its own; only received energy is shared
		m.expanded = make(map[string]struct{})
		enter(n, m.uncommitted[n], 0)
		for len(stack) > 0 {
			top := len(stack) - 1
			f := stack[top]
			list := m.graph.reverse[f.node]
			if f.next >= m.graph.fanOut(list) {
				stack = stack[:top]
				continue
			}
			stack[top].next++

			entry := list[f.next]
			source := m.graph.edges[entry.edge].Start
			already := received[source]
			if already < 0 {
				already = 0
			}
			delta := -entry.priority*f.energy*factor - already
			if delta <= 0 {
				continue
			}
			enter(source, delta, f.depth+1)
		}
	}

	m.uncommitted = make(map[string]float64)
	m.uncommittedOrder = m.uncommittedOrder[:0]
	m.expanded = nil
}

func (m *EnergyMap) commit(node string, energy float64) {
	if _, ok := m.energies[node]; !ok {
		m.order = append(m.order, node)
	}
	m.energies[node] += energy
}

// Energy returns the committed energy of node, zero if it has none.
func (m *EnergyMap) Energy(node string) float64 {
	return m.energies[node]
}

// Set overrides the committed energy of node.
func (m *EnergyMap) Set(node string, energy float64) {
	if _, ok := m.energies[node]; !ok {
		m.order = append(m.order, node)
	}
	m.energies[node] = energy
}

// Uncommitted returns a copy of the energy waiting for ReversePropagate.
func (m *EnergyMap) Uncommitted() map[string]float64 {
	out := make(map[string]float64, len(m.uncommitted))
	for n, e := range m.uncommitted {
		out[n] = e
	}
	return out
}

// Top returns the n most energetic concepts, strongest first. Ties keep
// the order in which concepts were first charged.
func (m *EnergyMap) Top(n int) []Candidate {
	out := make([]Candidate, 0, len(m.order))
	for _, node := range m.order {
		if e := m.energies[node]; e > 0 {
			out = append(out, Candidate{Concept: node, Score: e})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Reset clears all committed and uncommitted energy.
func (m *EnergyMap) Reset() {
	m.energies = make(map[string]float64)
	m.order = m.order[:0]
	m.uncommitted = make(map[string]float64)
	m.uncommittedOrder = m.uncommittedOrder[:0]
}
