package knowledge

import (
	"errors"
	"fmt"

	"github.com/vthunder/grass/internal/graph"
)

// Terminator is appended to every pattern when it is compiled into graph
// edges. It marks "the pattern ends here" and is never part of the input.
const Terminator = "$end"

// ErrUnknownPattern is returned when a pattern name has no definition.
var ErrUnknownPattern = errors.New("knowledge: unknown pattern")

// Pattern is a named ordered sequence of slot concepts. The same name may be
// defined more than once; every definition contributes edges, and the last
// one is authoritative for slot lookups.
type Pattern struct {
	Name  string   `yaml:"name" json:"name"`
	Slots []string `yaml:"slots" json:"slots"`
}

// Catalogue is an ordered collection of pattern definitions.
type Catalogue struct {
	patterns []Pattern
	byName   map[string]int
}

// NewCatalogue creates a catalogue holding patterns in order.
func NewCatalogue(patterns ...Pattern) *Catalogue {
	c := &Catalogue{byName: make(map[string]int)}
	for _, p := range patterns {
		c.Add(p)
	}
	return c
}

// Add appends a definition. A later definition of an existing name replaces
// it for Pattern and Size, but the earlier one keeps its edges.
func (c *Catalogue) Add(p Pattern) {
	slots := make([]string, len(p.Slots))
	copy(slots, p.Slots)
	c.patterns = append(c.patterns, Pattern{Name: p.Name, Slots: slots})
	c.byName[p.Name] = len(c.patterns) - 1
}

// Patterns returns every definition in insertion order.
func (c *Catalogue) Patterns() []Pattern {
	out := make([]Pattern, len(c.patterns))
	copy(out, c.patterns)
	return out
}

// Len returns the number of definitions, duplicates included.
func (c *Catalogue) Len() int {
	return len(c.patterns)
}

// Pattern returns the authoritative definition of name.
func (c *Catalogue) Pattern(name string) (Pattern, error) {
	i, ok := c.byName[name]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
	}
	return c.patterns[i], nil
}

// Size returns the slot count of the authoritative definition of name,
// terminator excluded.
func (c *Catalogue) Size(name string) (int, error) {
	p, err := c.Pattern(name)
	if err != nil {
		return 0, err
	}
	return len(p.Slots), nil
}

// Edges compiles every definition into slot -> pattern edges, one per slot
// plus one for the terminator at index len(slots).
func (c *Catalogue) Edges() []graph.Edge {
	var edges []graph.Edge
	for _, p := range c.patterns {
		for i, slot := range p.Slots {
			edges = append(edges, graph.PatternEdge(slot, p.Name, i))
		}
		edges = append(edges, graph.PatternEdge(Terminator, p.Name, len(p.Slots)))
	}
	return edges
}

// Sizes returns the slot count of every pattern name.
func (c *Catalogue) Sizes() map[string]int {
	sizes := make(map[string]int, len(c.byName))
	for name, i := range c.byName {
		sizes[name] = len(c.patterns[i].Slots)
	}
	return sizes
}
