package reflex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
)

// Dispatch tuning
const (
	DispatchDepth  = 3   // trigger -> parent -> parent -> task
	DispatchEnergy = 0.3 // charge placed on each event concept
)

var dispatchPropagation = map[graph.EdgeType]float64{
	graph.EdgeParent:   1.0,
	graph.EdgeReaction: 0.8,
}

// Engine manages reactions and dispatches events to them
type Engine struct {
	reactions   map[string]*Reaction
	tasks       map[string]*Reaction // task concept -> winning reaction
	hierarchy   knowledge.Hierarchy
	graph       *graph.Graph
	handlers    *HandlerRegistry
	log         *Log
	reactionDir string
	mu          sync.RWMutex
}

// NewEngine creates a new reaction engine. hier may be nil.
func NewEngine(statePath string, hier knowledge.Hierarchy) *Engine {
	e := &Engine{
		reactions:   make(map[string]*Reaction),
		hierarchy:   hier,
		handlers:    NewHandlerRegistry(),
		log:         NewLogWithPath(100, statePath),
		reactionDir: filepath.Join(statePath, "reactions"),
	}
	e.rebuild()
	return e
}

// Handlers returns the handler registry
func (e *Engine) Handlers() *HandlerRegistry {
	return e.handlers
}

// Log returns the dispatch log
func (e *Engine) Log() *Log {
	return e.log
}

// Load loads all reactions from the reactions directory and the recent
// dispatch log
func (e *Engine) Load() error {
	if err := e.reload(); err != nil {
		return err
	}
	if err := e.log.Load(); err != nil {
		logging.Warn("reflex", "Failed to load dispatch log: %v", err)
	}
	return nil
}

// reload replaces the loaded reactions with the directory contents
func (e *Engine) reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.reactionDir, 0755); err != nil {
		return fmt.Errorf("failed to create reactions dir: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(e.reactionDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to glob reactions: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(e.reactionDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to glob reactions: %w", err)
	}
	files = append(files, ymlFiles...)

	e.reactions = make(map[string]*Reaction)
	for _, file := range files {
		r, err := loadReactionFile(file)
		if err != nil {
			logging.Warn("reflex", "Failed to load %s: %v", file, err)
			continue
		}
		e.reactions[r.Name] = r
		logging.Debug("reflex", "Loaded: %s", r.Name)
	}
	e.rebuild()

	logging.Info("reflex", "Loaded %d reactions", len(e.reactions))
	return nil
}

func loadReactionFile(path string) (*Reaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Reaction
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	if r.Name == "" {
		r.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Reaction) validate() error {
	if !validName(r.Name) {
		return fmt.Errorf("reaction %q: name must be a plain file name", r.Name)
	}
	if r.Task == "" {
		return fmt.Errorf("reaction %s: task is required", r.Name)
	}
	if len(r.Triggers) == 0 {
		return fmt.Errorf("reaction %s: at least one trigger is required", r.Name)
	}
	return nil
}

// validName reports whether name can be used as a file name inside the
// reactions directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// Add registers a reaction without persisting it
func (e *Engine) Add(r *Reaction) error {
	if err := r.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reactions[r.Name] = r
	e.rebuild()
	return nil
}

// SaveReaction saves a reaction to a YAML file and registers it
func (e *Engine) SaveReaction(r *Reaction) error {
	if err := r.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.reactionDir, 0755); err != nil {
		return fmt.Errorf("failed to create reactions dir: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reaction: %w", err)
	}

	filename := filepath.Join(e.reactionDir, r.Name+".yaml")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write reaction: %w", err)
	}

	e.reactions[r.Name] = r
	e.rebuild()
	logging.Info("reflex", "Saved: %s", r.Name)
	return nil
}

// Delete removes a reaction
func (e *Engine) Delete(name string) error {
	if !validName(name) {
		return fmt.Errorf("reaction %q: name must be a plain file name", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.reactions[name]; !ok {
		return fmt.Errorf("reaction not found: %s", name)
	}
	delete(e.reactions, name)
	e.rebuild()

	filename := filepath.Join(e.reactionDir, name+".yaml")
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	logging.Info("reflex", "Deleted: %s", name)
	return nil
}

// List returns all loaded reactions sorted by name
func (e *Engine) List() []*Reaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sorted()
}

// Get returns a reaction by name
func (e *Engine) Get(name string) *Reaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reactions[name]
}

func (e *Engine) sorted() []*Reaction {
	result := make([]*Reaction, 0, len(e.reactions))
	for _, r := range e.reactions {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// rebuild recompiles the reaction graph. Caller holds mu.
func (e *Engine) rebuild() {
	g := graph.New()
	tasks := make(map[string]*Reaction)
	for _, r := range e.sorted() {
		for _, trigger := range r.Triggers {
			g.UpdateEdge(graph.NewEdge(trigger, r.Task, graph.EdgeReaction), r.weight())
		}
		if cur, ok := tasks[r.Task]; !ok || r.Priority > cur.Priority {
			tasks[r.Task] = r
		}
	}
	if e.hierarchy != nil {
		for _, link := range e.hierarchy.Links() {
			g.UpdateEdge(link, 1.0)
		}
	}
	e.graph = g
	e.tasks = tasks
}

// Dispatch ranks the reactions suggested by a set of event concepts. Event
// concepts are primed, then reaction edges are looked up from each concept
// and from its superconcepts.
func (e *Engine) Dispatch(concepts ...string) ([]Candidate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(concepts) == 0 {
		return nil, nil
	}

	energy := graph.NewEnergyMap(e.graph)
	for _, c := range concepts {
		energy.AddEnergy(c, DispatchEnergy, dispatchPropagation, true)
	}

	opts := graph.LookupOptions{
		Indices:              make([]int, len(concepts)),
		Depth:                DispatchDepth,
		IndexMismatchPenalty: graph.DefaultIndexMismatchPenalty,
		Energy:               energy,
		ResultTypes:          graph.Types(graph.EdgeReaction),
		TransitionTypes:      graph.Types(graph.EdgeParent),
	}
	ranked, err := e.graph.Lookup(concepts, opts)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, c := range ranked {
		r, ok := e.tasks[c.Concept]
		if !ok || c.Score <= 0 {
			continue
		}
		out = append(out, Candidate{Reaction: r, Score: c.Score})
	}
	logging.Debug("reflex", "Dispatch %v -> %d candidates", concepts, len(out))
	return out, nil
}

// Execute runs the handler of a single reaction
func (e *Engine) Execute(ctx context.Context, r *Reaction, vars map[string]any) (*Outcome, error) {
	start := time.Now()

	action := r.Action
	if action == "" {
		action = DefaultAction
	}
	h, ok := e.handlers.Get(action)
	if !ok {
		return nil, fmt.Errorf("unknown action: %s", action)
	}

	params := make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	all := map[string]any{
		"task":     r.Task,
		"reaction": r.Name,
	}
	for k, v := range vars {
		all[k] = v
	}

	out := &Outcome{Reaction: r.Name, Task: r.Task}
	result, err := h.Execute(ctx, params, all)
	out.Duration = time.Since(start)
	if err != nil {
		out.Error = fmt.Errorf("%s (%s) failed: %w", r.Name, action, err)
		return out, nil
	}
	out.Success = true
	if result != nil {
		out.Output = fmt.Sprintf("%v", result)
	}

	e.mu.Lock()
	r.LastFired = time.Now()
	r.FireCount++
	e.mu.Unlock()

	return out, nil
}

// Process dispatches the event concepts and fires candidates best first
// until one succeeds. It returns false when no reaction fired.
func (e *Engine) Process(ctx context.Context, concepts []string, vars map[string]any) (bool, []*Outcome, error) {
	candidates, err := e.Dispatch(concepts...)
	if err != nil {
		return false, nil, err
	}

	event := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		event[k] = v
	}
	event["concepts"] = strings.Join(concepts, " ")

	var outcomes []*Outcome
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return false, outcomes, err
		}

		out, err := e.Execute(ctx, c.Reaction, event)
		if err != nil {
			logging.Warn("reflex", "Error executing %s: %v", c.Reaction.Name, err)
			continue
		}
		out.Score = c.Score
		outcomes = append(outcomes, out)
		e.log.AddEntry(entryFor(concepts, out))

		if out.Success {
			logging.Info("reflex", "Fired: %s -> %s (%.2fms)", c.Reaction.Name, c.Reaction.Task, out.Duration.Seconds()*1000)
			return true, outcomes, nil
		}
		logging.Warn("reflex", "Failed: %s: %v", c.Reaction.Name, out.Error)
	}

	return false, outcomes, nil
}

func entryFor(concepts []string, out *Outcome) LogEntry {
	entry := LogEntry{
		Concepts: concepts,
		Reaction: out.Reaction,
		Task:     out.Task,
		Score:    out.Score,
		Output:   out.Output,
		Success:  out.Success,
		Duration: out.Duration,
	}
	if out.Error != nil {
		entry.ErrorMessage = out.Error.Error()
	}
	return entry
}
