package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/vthunder/grass/internal/config"
	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/parser"
	"github.com/vthunder/grass/internal/profiling"
	"github.com/vthunder/grass/internal/session"
	"github.com/vthunder/grass/internal/state"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	if err := cfg.InitProfiling(); err != nil {
		fatal(err)
	}
	defer profiling.Get().Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "parse":
		os.Exit(handleParse(ctx, cfg, args))
	case "lookup":
		handleLookup(cfg, args)
	case "dispatch":
		handleDispatch(ctx, cfg, args)
	case "associate":
		handleAssociate(cfg, args)
	case "state":
		handleState(cfg, args)
	case "catalogue":
		handleCatalogue(cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`grass - incremental concept-graph parser

Usage: grass <command> [options]

Commands:
  parse <text>                   Parse text and print the forest
  parse -raw Word_my Word_home   Parse concept identifiers as given
  parse -json <text>             Print the forest as JSON
  parse -f inputs.txt            Parse each line of a file concurrently

  lookup -i 0,1 <concept>...     Rank the patterns the concepts point at
  lookup -depth 3 ...            Follow hierarchy parents for more rounds

  dispatch <text>                Rank the reactions a parse suggests
  dispatch -fire <text>          Fire the best reaction that succeeds

  associate <from> <to> [w]      Learn an association edge

  state                          Summary and health of the state directory
  state -tail 20                 Show recent dispatch entries
  state -truncate 1000           Keep only the last N log entries

  catalogue                      List the loaded patterns

Environment:
  GRASS_STATE_PATH   State directory (default: "state")
  GRASS_CATALOGUE    YAML knowledge bundle overriding the database
  GRASS_DB_DRIVER    "sqlite" (pure Go, default) or "sqlite3" (cgo)
  GRASS_PROFILE      off, minimal, detailed or trace
  DEBUG              "true" for debug logging`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func openSession(cfg *config.Config) *session.Session {
	s, err := session.Open(cfg)
	if err != nil {
		fatal(err)
	}
	return s
}

// handleParse returns the exit code: 0 parsed, 1 failed, 2 structural bug
func handleParse(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	raw := fs.Bool("raw", false, "Input is space-separated concept identifiers")
	asJSON := fs.Bool("json", false, "Print the forest as JSON")
	file := fs.String("f", "", "Parse each non-empty line of a file")
	workers := fs.Int("workers", 4, "Concurrent parses with -f")
	fs.Parse(args)

	if *file != "" {
		return parseFile(ctx, cfg, *file, *raw, *workers)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "parse needs input text")
		return 1
	}

	s := openSession(cfg)
	defer s.Close()

	tree, err := s.Parse(ctx, strings.Join(fs.Args(), " "), *raw)
	if tree == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		data, _ := json.MarshalIndent(forestJSON(tree), "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Print(tree)
		if root, ok := tree.FullSpan(); ok {
			fmt.Printf("\nRoot: %s\n", root.Concept)
		} else {
			fmt.Printf("\nRoots at columns %v\n", tree.Roots())
		}
		for _, a := range tree.Ambiguities() {
			if m, ok := tree.Match(a.Match); ok {
				fmt.Printf("Ambiguous: %s at %d (margin %.2f)\n", m.Concept, m.Column, a.Margin)
			}
		}
	}

	var bug *parser.ParseBug
	if errors.As(err, &bug) {
		fmt.Fprintf(os.Stderr, "Parse bug: %v\n", bug)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFile(ctx context.Context, cfg *config.Config, path string, raw bool, workers int) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	var inputs []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			inputs = append(inputs, line)
		}
	}

	s := openSession(cfg)
	defer s.Close()

	results, err := s.ParseAll(ctx, inputs, raw, workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	code := 0
	for _, r := range results {
		var bug *parser.ParseBug
		switch {
		case errors.As(r.Err, &bug):
			fmt.Printf("%s\tBUG %v\n", r.Input, bug)
			code = 2
		case r.Err != nil:
			fmt.Printf("%s\tERROR %v\n", r.Input, r.Err)
			if code == 0 {
				code = 1
			}
		default:
			if root, ok := r.Tree.FullSpan(); ok {
				fmt.Printf("%s\t%s\n", r.Input, root.Concept)
			} else {
				fmt.Printf("%s\t(partial) %v\n", r.Input, r.Tree.Roots())
			}
		}
	}
	return code
}

type matchJSON struct {
	Layer    int      `json:"layer"`
	Column   int      `json:"column"`
	Size     int      `json:"size"`
	Concept  string   `json:"concept"`
	Children []string `json:"children,omitempty"`
}

func forestJSON(tree *parser.Tree) map[string]any {
	var matches []matchJSON
	for _, layer := range tree.Layers() {
		for _, id := range layer {
			m, ok := tree.Match(id)
			if !ok {
				continue
			}
			mj := matchJSON{Layer: m.Layer, Column: m.Column, Size: m.Size, Concept: m.Concept}
			for _, c := range m.Children {
				if child, ok := tree.Match(c); ok {
					mj.Children = append(mj.Children, child.Concept)
				}
			}
			matches = append(matches, mj)
		}
	}
	rows := make([][]string, len(tree.Layers()))
	for l := range rows {
		rows[l] = tree.Row(l)
	}
	return map[string]any{
		"rows":    rows,
		"matches": matches,
		"roots":   tree.Roots(),
	}
}

func handleLookup(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	indices := fs.String("i", "", "Comma-separated slot index per concept (default 0,1,2...)")
	depth := fs.Int("depth", 0, "Traversal rounds following hierarchy parents")
	fs.Parse(args)

	seeds := fs.Args()
	if len(seeds) == 0 {
		fatal(fmt.Errorf("lookup needs at least one concept"))
	}
	idx, err := parseIndices(*indices, len(seeds))
	if err != nil {
		fatal(err)
	}

	s := openSession(cfg)
	defer s.Close()

	ranked, err := s.Lookup(seeds, idx, *depth)
	if err != nil {
		fatal(err)
	}
	for _, c := range ranked {
		fmt.Printf("%8.3f  %s\n", c.Score, c.Concept)
	}
}

func parseIndices(s string, n int) ([]int, error) {
	if s == "" {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	var idx []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad index %q: %w", part, err)
		}
		idx = append(idx, v)
	}
	return idx, nil
}

func handleDispatch(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	raw := fs.Bool("raw", false, "Input is space-separated concept identifiers")
	fire := fs.Bool("fire", false, "Execute the best reaction")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fatal(fmt.Errorf("dispatch needs input text"))
	}

	s := openSession(cfg)
	defer s.Close()

	res, err := s.Dispatch(ctx, strings.Join(fs.Args(), " "), *raw, *fire)
	if err != nil {
		fatal(err)
	}

	if res.Bug != nil {
		fmt.Printf("Partial parse: %v\n", res.Bug)
	}
	fmt.Printf("Concepts: %s\n", strings.Join(res.Concepts, " "))
	if len(res.Candidates) == 0 {
		fmt.Println("No reactions")
		return
	}
	for _, c := range res.Candidates {
		fmt.Printf("%8.3f  %s -> %s\n", c.Score, c.Reaction.Name, c.Reaction.Task)
	}
	for _, o := range res.Outcomes {
		if o.Success {
			fmt.Printf("Fired %s: %s\n", o.Reaction, o.Output)
		} else {
			fmt.Printf("Failed %s: %v\n", o.Reaction, o.Error)
		}
	}
}

func handleAssociate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("associate", flag.ExitOnError)
	typ := fs.String("type", "associated", "Edge type")
	slot := fs.Int("slot", -1, "Slot index for pattern edges")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fatal(fmt.Errorf("associate needs <from> <to> [weight]"))
	}
	weight := 1.0
	if fs.NArg() > 2 {
		w, err := strconv.ParseFloat(fs.Arg(2), 64)
		if err != nil {
			fatal(fmt.Errorf("bad weight: %w", err))
		}
		weight = w
	}

	s := openSession(cfg)
	defer s.Close()

	e := graph.NewEdge(fs.Arg(0), fs.Arg(1), graph.EdgeType(*typ))
	if *slot >= 0 {
		e.Index = *slot
	}
	added, err := s.Associate(e, weight)
	if err != nil {
		fatal(err)
	}
	if added {
		fmt.Printf("Learned %s (weight %.2f)\n", e, weight)
	} else {
		fmt.Printf("Stored weight %.2f for %s; the live graph already had it\n", weight, e)
	}
}

func handleState(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	tail := fs.Int("tail", 0, "Show the last N dispatch entries")
	truncate := fs.Int("truncate", 0, "Keep only the last N log entries")
	fs.Parse(args)

	db, err := cfg.OpenStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	inspector := state.NewInspector(cfg.StatePath, db)

	if *truncate > 0 {
		if err := inspector.TruncateLogs(*truncate); err != nil {
			fatal(err)
		}
		fmt.Printf("Kept the last %d log entries\n", *truncate)
		return
	}

	if *tail > 0 {
		entries, err := inspector.TailLogs(state.DispatchLog, *tail)
		if err != nil {
			fatal(err)
		}
		for _, e := range entries {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		}
		return
	}

	summary, err := inspector.Summary()
	if err != nil {
		fatal(err)
	}
	fmt.Println("State Summary")
	fmt.Println("=============")
	if k := summary.Knowledge; k != nil {
		fmt.Printf("Knowledge:  %d patterns, %d words, %d families (schema v%d)\n", k.Patterns, k.Words, k.Hierarchy, k.Version)
		fmt.Printf("Learned:    %d associations\n", k.Associations)
	}
	fmt.Printf("Reactions:  %d\n", summary.Reactions)
	fmt.Printf("Dispatches: %d\n", summary.Dispatch)
	fmt.Printf("Timings:    %d\n", summary.Timings)

	health, err := inspector.Health()
	if err != nil {
		fatal(err)
	}
	fmt.Printf("\nHealth Status: %s\n", health.Status)
	for _, w := range health.Warnings {
		fmt.Printf("  - %s\n", w)
	}
	for _, r := range health.Recommendations {
		fmt.Printf("  > %s\n", r)
	}
}

func handleCatalogue(cfg *config.Config) {
	db, err := cfg.OpenStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	b, source, err := cfg.Knowledge(db)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Knowledge from %s\n\n", source)
	for _, p := range b.Patterns {
		fmt.Printf("%-32s %s\n", p.Name, strings.Join(p.Slots, " "))
	}
	for _, w := range b.Words {
		fmt.Printf("%-32s %s\n", w.Word, strings.Join(w.Concepts, " "))
	}
}
