package parser

import (
	"context"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
)

// Engine owns the concept graph compiled from a pattern catalogue and a
// hierarchy, and creates parse trees over it. Trees only read the graph, so
// an Engine may serve many sequential parses.
type Engine struct {
	graph     *graph.Graph
	catalogue *knowledge.Catalogue
	hierarchy knowledge.Hierarchy
	cfg       Config
}

// NewEngine compiles cat and hier into a graph. Pattern edges go in first,
// so a hierarchy link between two concepts already joined by a pattern edge
// is dropped.
func NewEngine(cat *knowledge.Catalogue, hier knowledge.Hierarchy, cfg Config) *Engine {
	g := graph.New(cat.Edges()...)
	for _, e := range hier.Links() {
		g.UpdateEdge(e, 1.0)
	}
	for name, size := range cat.Sizes() {
		g.SetSize(name, size)
	}

	logging.Debug("parser", "Compiled %d patterns into %d edges", cat.Len(), g.EdgeCount())

	return &Engine{
		graph:     g,
		catalogue: cat,
		hierarchy: hier,
		cfg:       cfg,
	}
}

// NewEngineFromBundle compiles a knowledge bundle.
func NewEngineFromBundle(b *knowledge.Bundle, cfg Config) *Engine {
	return NewEngine(b.Catalogue(), b.DictHierarchy(), cfg)
}

// Graph returns the compiled concept graph.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Catalogue returns the pattern catalogue.
func (e *Engine) Catalogue() *knowledge.Catalogue {
	return e.catalogue
}

// Hierarchy returns the hierarchy provider.
func (e *Engine) Hierarchy() knowledge.Hierarchy {
	return e.hierarchy
}

// Config returns the engine's tuning.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewTree creates an empty parse tree.
func (e *Engine) NewTree() *Tree {
	return newTree(e)
}

// Parse builds a tree over tokens and runs it to completion. The tree is
// returned even when err is a *ParseBug.
func (e *Engine) Parse(ctx context.Context, tokens []string) (*Tree, error) {
	t := e.NewTree()
	for _, tok := range tokens {
		t.AddWord(tok)
	}
	return t, t.Run(ctx)
}
