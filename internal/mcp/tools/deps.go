// Package tools provides MCP tool registration with dependency injection.
package tools

import (
	"github.com/vthunder/grass/internal/session"
	"github.com/vthunder/grass/internal/state"
)

// Dependencies holds all services that MCP tools may need.
// Optional fields may be nil.
type Dependencies struct {
	// Core services (required)
	Session *session.Session

	// Optional services
	StateInspector *state.Inspector

	// If set, tools call this after they run
	OnToolCall func(toolName string)
}
