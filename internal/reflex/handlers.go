package reflex

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"text/template"

	"github.com/vthunder/grass/internal/logging"
)

// DefaultAction is run by reactions that do not name one
const DefaultAction = "log"

// Handler is the interface for reaction handlers
type Handler interface {
	Execute(ctx context.Context, params map[string]any, vars map[string]any) (any, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, params map[string]any, vars map[string]any) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	return f(ctx, params, vars)
}

// HandlerRegistry holds all available handlers
type HandlerRegistry struct {
	handlers map[string]Handler
}

// NewHandlerRegistry creates a registry with built-in handlers
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{
		handlers: make(map[string]Handler),
	}

	r.Register("log", HandlerFunc(handleLog))
	r.Register("template", HandlerFunc(handleTemplate))
	r.Register("write_file", HandlerFunc(handleWriteFile))
	r.Register("shell", HandlerFunc(handleShell))

	return r
}

// Register adds a handler to the registry
func (r *HandlerRegistry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Get retrieves a handler by name
func (r *HandlerRegistry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// List returns all registered handler names, sorted
func (r *HandlerRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in handlers

func handleLog(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	message := resolveVar(params, vars, "message", "task")
	rendered, err := renderTemplate(message, vars)
	if err != nil {
		return nil, fmt.Errorf("log template failed: %w", err)
	}
	logging.Info("reflex", "%s", rendered)
	return rendered, nil
}

func handleTemplate(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	tmpl, ok := params["template"].(string)
	if !ok {
		return nil, fmt.Errorf("template is required")
	}
	return renderTemplate(tmpl, vars)
}

func handleWriteFile(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	path := resolveVar(params, vars, "path")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	content, err := renderTemplate(resolveVar(params, vars, "content"), vars)
	if err != nil {
		return nil, fmt.Errorf("content template failed: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	return path, nil
}

func handleShell(ctx context.Context, params map[string]any, vars map[string]any) (any, error) {
	command := resolveVar(params, vars, "command")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("shell failed: %w", err)
	}

	return string(output), nil
}

// Helper functions

func resolveVar(params map[string]any, vars map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := params[name].(string); ok {
			// Check if it's a variable reference
			if strings.HasPrefix(v, "$") {
				if val, ok := vars[v[1:]]; ok {
					return fmt.Sprintf("%v", val)
				}
			}
			return v
		}
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}

func renderTemplate(tmplStr string, vars map[string]any) (string, error) {
	tmpl, err := template.New("reflex").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}

	return buf.String(), nil
}
