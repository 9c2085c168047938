// Package session assembles the knowledge, parser and reaction engines
// behind the command-line tools and the MCP server.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vthunder/grass/internal/config"
	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
	"github.com/vthunder/grass/internal/parser"
	"github.com/vthunder/grass/internal/profiling"
	"github.com/vthunder/grass/internal/reflex"
	"github.com/vthunder/grass/internal/store"
	"github.com/vthunder/grass/internal/tokenize"
)

// Session owns one compiled engine. Parses and lookups may run
// concurrently; Associate excludes them while it mutates the graph.
type Session struct {
	cfg    *config.Config
	db     *store.DB
	bundle *knowledge.Bundle
	source string
	engine *parser.Engine
	reflex *reflex.Engine
	mu     sync.RWMutex
}

// Open loads knowledge, compiles the parser engine, applies learned
// associations and loads reactions.
func Open(cfg *config.Config) (*Session, error) {
	db, err := cfg.OpenStore()
	if err != nil {
		return nil, err
	}

	bundle, source, err := cfg.Knowledge(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	engine := parser.NewEngineFromBundle(bundle, parser.DefaultConfig())
	added, err := db.Apply(engine.Graph())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply associations: %w", err)
	}

	rx := reflex.NewEngine(cfg.StatePath, bundle.DictHierarchy())
	if err := rx.Load(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info("session", "Knowledge from %s: %d patterns, %d words, %d learned edges",
		source, len(bundle.Patterns), len(bundle.Words), added)

	return &Session{
		cfg:    cfg,
		db:     db,
		bundle: bundle,
		source: source,
		engine: engine,
		reflex: rx,
	}, nil
}

// Close closes the database
func (s *Session) Close() error {
	return s.db.Close()
}

// DB returns the knowledge database
func (s *Session) DB() *store.DB { return s.db }

// Bundle returns the loaded knowledge
func (s *Session) Bundle() *knowledge.Bundle { return s.bundle }

// Source describes where the knowledge came from
func (s *Session) Source() string { return s.source }

// Reflex returns the reaction engine
func (s *Session) Reflex() *reflex.Engine { return s.reflex }

// Tokens turns input into lexical concepts. With raw set the input is
// already a space-separated list of concept identifiers.
func Tokens(input string, raw bool) ([]string, error) {
	if raw {
		return strings.Fields(input), nil
	}
	return tokenize.Tokenize(input)
}

// Parse tokenizes and parses input. The tree is returned even when err is
// a *parser.ParseBug.
func (s *Session) Parse(ctx context.Context, input string, raw bool) (*parser.Tree, error) {
	tokens, err := Tokens(input, raw)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	done := profiling.Get().StartWithMetadata(profiling.NewRunID(), "session.parse", map[string]interface{}{
		"tokens": len(tokens),
	})
	defer done()

	return s.engine.Parse(ctx, tokens)
}

// Result is the outcome of one input of ParseAll
type Result struct {
	Input string
	Tree  *parser.Tree
	Err   error
}

// ParseAll parses every input independently using up to workers
// goroutines. Results keep input order; a failing input never stops the
// others. Only ctx cancellation is returned as an error.
func (s *Session) ParseAll(ctx context.Context, inputs []string, raw bool, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tree, err := s.Parse(gctx, input, raw)
			results[i] = Result{Input: input, Tree: tree, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Lookup runs a one-round graph lookup with seeds at the given indices.
// depth <= 0 keeps the default.
func (s *Session) Lookup(seeds []string, indices []int, depth int) ([]graph.Candidate, error) {
	opts := graph.NewLookupOptions(indices...)
	if depth > 0 {
		opts.Depth = depth
		opts.TransitionTypes = graph.Types(graph.EdgeParent)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Graph().Lookup(seeds, opts)
}

// Associate persists a learned edge and adds it to the live graph. It
// reports whether the graph gained a new edge.
func (s *Session) Associate(e graph.Edge, weight float64) (bool, error) {
	if e.Start == "" || e.End == "" {
		return false, fmt.Errorf("association needs both concepts")
	}
	if err := s.db.AddAssociation(e, weight); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Graph().UpdateEdge(e, weight), nil
}

// Dispatch parses input and ranks the reactions its concepts suggest. With
// fire set the best reaction that succeeds is executed. A parse bug does
// not stop dispatch; the concepts of the partial forest are used.
func (s *Session) Dispatch(ctx context.Context, input string, raw, fire bool) (*DispatchResult, error) {
	tree, err := s.Parse(ctx, input, raw)
	var bug *parser.ParseBug
	if err != nil && !errors.As(err, &bug) {
		return nil, err
	}
	if bug != nil {
		logging.Warn("session", "Dispatching partial parse of %q: %v", input, bug)
	}

	res := &DispatchResult{Concepts: tree.Concepts(), Bug: bug}
	if fire {
		res.Fired, res.Outcomes, err = s.reflex.Process(ctx, res.Concepts, map[string]any{"input": input})
		if err != nil {
			return nil, err
		}
	}
	res.Candidates, err = s.reflex.Dispatch(res.Concepts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DispatchResult is the outcome of Dispatch
type DispatchResult struct {
	Concepts   []string
	Candidates []reflex.Candidate
	Fired      bool
	Outcomes   []*reflex.Outcome
	Bug        *parser.ParseBug // set when only part of the input was parsed
}
