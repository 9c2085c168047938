package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/logging"
	"github.com/vthunder/grass/internal/parser"
	"github.com/vthunder/grass/internal/reflex"
)

// RegisterAll registers all MCP tools with the given server and dependencies.
func RegisterAll(s *server.MCPServer, deps *Dependencies) {
	h := &handlers{deps: deps}

	s.AddTool(parseTool(), h.wrap("grass_parse", h.parse))
	s.AddTool(lookupTool(), h.wrap("grass_lookup", h.lookup))
	s.AddTool(dispatchTool(), h.wrap("grass_dispatch", h.dispatch))
	s.AddTool(associateTool(), h.wrap("grass_associate", h.associate))
	s.AddTool(saveReactionTool(), h.wrap("grass_save_reaction", h.saveReaction))

	if deps.StateInspector != nil {
		s.AddTool(stateTool(), h.wrap("grass_state", h.state))
	}
}

type handlers struct {
	deps *Dependencies
}

func (h *handlers) wrap(name string, fn server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logging.Debug("mcp", "%s called", name)
		result, err := fn(ctx, req)
		if h.deps.OnToolCall != nil {
			h.deps.OnToolCall(name)
		}
		return result, err
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseTool() mcp.Tool {
	return mcp.NewTool("grass_parse",
		mcp.WithDescription("Parse text into a forest of recognised concepts. Returns one row of concepts per layer, the root columns and the closest calls the parser made."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to parse, or space-separated concept identifiers when raw is true"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Treat text as concept identifiers (e.g. \"Word_my Word_home\"). Default: false"),
		),
	)
}

type ambiguityJSON struct {
	Concept string  `json:"concept"`
	Column  int     `json:"column"`
	Layer   int     `json:"layer"`
	Margin  float64 `json:"margin"`
}

type parseJSON struct {
	Rows        [][]string      `json:"rows"`
	Roots       []int           `json:"roots"`
	Root        string          `json:"root,omitempty"`
	Ambiguities []ambiguityJSON `json:"ambiguities,omitempty"`
	Bug         string          `json:"bug,omitempty"`
}

func (h *handlers) parse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	raw, _ := args["raw"].(bool)

	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	tree, err := h.deps.Session.Parse(ctx, text, raw)
	if tree == nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse: %v", err)), nil
	}

	var bug *parser.ParseBug
	if err != nil && !errors.As(err, &bug) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse: %v", err)), nil
	}

	out := parseJSON{Roots: tree.Roots()}
	for l := range tree.Layers() {
		out.Rows = append(out.Rows, tree.Row(l))
	}
	if root, ok := tree.FullSpan(); ok {
		out.Root = root.Concept
	}
	for _, a := range tree.Ambiguities() {
		if m, ok := tree.Match(a.Match); ok {
			out.Ambiguities = append(out.Ambiguities, ambiguityJSON{
				Concept: m.Concept, Column: m.Column, Layer: m.Layer, Margin: a.Margin,
			})
		}
	}
	if bug != nil {
		out.Bug = bug.Error()
	}
	return jsonResult(out)
}

func lookupTool() mcp.Tool {
	return mcp.NewTool("grass_lookup",
		mcp.WithDescription("Rank the patterns a set of concepts jointly points at, best first."),
		mcp.WithString("concepts",
			mcp.Required(),
			mcp.Description("Space-separated seed concepts"),
		),
		mcp.WithString("indices",
			mcp.Description("Comma-separated slot index of each concept. Default: 0,1,2..."),
		),
		mcp.WithNumber("depth",
			mcp.Description("Traversal rounds; above 1 follows hierarchy parents. Default: 1"),
		),
	)
}

func (h *handlers) lookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	concepts, _ := args["concepts"].(string)
	indices, _ := args["indices"].(string)
	depth := 0
	if d, ok := args["depth"].(float64); ok {
		depth = int(d)
	}

	seeds := strings.Fields(concepts)
	if len(seeds) == 0 {
		return mcp.NewToolResultError("concepts is required"), nil
	}
	idx, err := parseIndices(indices, len(seeds))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ranked, err := h.deps.Session.Lookup(seeds, idx, depth)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if ranked == nil {
		ranked = []graph.Candidate{}
	}
	return jsonResult(ranked)
}

func parseIndices(s string, n int) ([]int, error) {
	if strings.TrimSpace(s) == "" {
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
			return nil, fmt.Errorf("bad index %q", part)
		}
		idx = append(idx, v)
	}
	return idx, nil
}

func dispatchTool() mcp.Tool {
	return mcp.NewTool("grass_dispatch",
		mcp.WithDescription("Parse text and rank the reactions its concepts suggest. With fire set, runs the best reaction that succeeds."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Event text, or concept identifiers when raw is true"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Treat text as concept identifiers. Default: false"),
		),
		mcp.WithBoolean("fire",
			mcp.Description("Execute the best reaction. Default: false"),
		),
	)
}

type candidateJSON struct {
	Reaction string  `json:"reaction"`
	Task     string  `json:"task"`
	Score    float64 `json:"score"`
}

type outcomeJSON struct {
	Reaction string `json:"reaction"`
	Success  bool   `json:"success"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *handlers) dispatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	raw, _ := args["raw"].(bool)
	fire, _ := args["fire"].(bool)

	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	res, err := h.deps.Session.Dispatch(ctx, text, raw, fire)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dispatch failed: %v", err)), nil
	}

	out := struct {
		Concepts   []string        `json:"concepts"`
		Candidates []candidateJSON `json:"candidates"`
		Fired      bool            `json:"fired"`
		Outcomes   []outcomeJSON   `json:"outcomes,omitempty"`
		Partial    string          `json:"partial,omitempty"`
	}{Concepts: res.Concepts, Candidates: []candidateJSON{}, Fired: res.Fired}
	if res.Bug != nil {
		out.Partial = res.Bug.Error()
	}
	for _, c := range res.Candidates {
		out.Candidates = append(out.Candidates, candidateJSON{Reaction: c.Reaction.Name, Task: c.Reaction.Task, Score: c.Score})
	}
	for _, o := range res.Outcomes {
		oj := outcomeJSON{Reaction: o.Reaction, Success: o.Success, Output: o.Output}
		if o.Error != nil {
			oj.Error = o.Error.Error()
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	return jsonResult(out)
}

func associateTool() mcp.Tool {
	return mcp.NewTool("grass_associate",
		mcp.WithDescription("Learn an association between two concepts. The edge is stored and takes effect immediately; asserting an existing edge only updates its stored weight."),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Start concept"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("End concept"),
		),
		mcp.WithString("type",
			mcp.Description("Edge type, e.g. parent, pattern, reaction. Default: associated"),
		),
		mcp.WithNumber("slot",
			mcp.Description("Slot index for pattern edges. Default: none"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Association strength. Default: 1"),
		),
	)
}

func (h *handlers) associate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	from, _ := args["from"].(string)
	to, _ := args["to"].(string)
	typ, _ := args["type"].(string)
	if typ == "" {
		typ = "associated"
	}
	weight := 1.0
	if w, ok := args["weight"].(float64); ok {
		weight = w
	}

	if from == "" || to == "" {
		return mcp.NewToolResultError("from and to are required"), nil
	}

	e := graph.NewEdge(from, to, graph.EdgeType(typ))
	if slot, ok := args["slot"].(float64); ok && slot >= 0 {
		e.Index = int(slot)
	}

	added, err := h.deps.Session.Associate(e, weight)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to associate: %v", err)), nil
	}
	if added {
		return mcp.NewToolResultText(fmt.Sprintf("Learned %s (weight %.2f)", e, weight)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored weight %.2f for %s; the live graph already had this edge", weight, e)), nil
}

func saveReactionTool() mcp.Tool {
	return mcp.NewTool("grass_save_reaction",
		mcp.WithDescription("Define or replace a reaction: a task dispatched when its trigger concepts are recognised."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Reaction name, also its file name"),
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task concept the reaction dispatches"),
		),
		mcp.WithString("triggers",
			mcp.Required(),
			mcp.Description("Space-separated trigger concepts"),
		),
		mcp.WithString("template",
			mcp.Description("Output template; without it the reaction just logs its task"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Trigger strength. Default: 1"),
		),
	)
}

func (h *handlers) saveReaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	name, _ := args["name"].(string)
	task, _ := args["task"].(string)
	triggers, _ := args["triggers"].(string)
	tmpl, _ := args["template"].(string)

	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	r := &reflex.Reaction{
		Name:     name,
		Task:     task,
		Triggers: strings.Fields(triggers),
	}
	if w, ok := args["weight"].(float64); ok {
		r.Weight = w
	}
	if tmpl != "" {
		r.Action = "template"
		r.Params = map[string]any{"template": tmpl}
	}

	if err := h.deps.Session.Reflex().SaveReaction(r); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save reaction: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved reaction %s -> %s", name, task)), nil
}

func stateTool() mcp.Tool {
	return mcp.NewTool("grass_state",
		mcp.WithDescription("Summarise the state directory: stored knowledge, reactions, log sizes and health warnings."),
	)
}

func (h *handlers) state(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := h.deps.StateInspector.Summary()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to summarise state: %v", err)), nil
	}
	health, err := h.deps.StateInspector.Health()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to check health: %v", err)), nil
	}
	return jsonResult(map[string]any{"summary": summary, "health": health})
}
