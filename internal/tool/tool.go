// Package tool defines the tool abstraction shared by built-in and external
// tools: a uniform invocable interface, a tagged success/error result
// envelope, and the run context carried from the agentic loop into a call.
package tool

import (
	"context"

	"go.uber.org/zap"
)

// RunContext is the opaque per-call bag passed from the loop to a tool.
// Immutable for the duration of one invocation.
type RunContext struct {
	Logger    *zap.Logger
	SessionID string
}

// Tool is the single invocable abstraction shared by built-in tools,
// subprocess-backed tools, and HTTP-backed tools (spec §9: "dispatch is by
// sum type or narrow virtual interface", not inheritance).
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}, rc RunContext) (*Result, error)
}

// Result is the tagged success/error variant of spec §3. The executor never
// returns a third state: transport exceptions become Error after retries
// are exhausted.
type Result struct {
	Success  bool
	Content  string
	Metadata map[string]interface{}
}

// Invocation is a parsed tool call: tool name plus argument map, produced by
// the response parser and consumed by the executor.
type Invocation struct {
	ToolName  string
	Arguments map[string]interface{}
}

// Definition is a tool's descriptor as rendered into the model-facing
// manifest.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}
