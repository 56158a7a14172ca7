package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corgivoice/voice-core/core/realtime"
)

// TranscriptEntry is the read-only conversation view handed to tool
// executors.
type TranscriptEntry struct {
	Role string
	Text string
}

// Call carries the per-invocation collaborators an executor may use.
type Call struct {
	Transcript    []TranscriptEntry
	AddBreadcrumb func(title string, data any)
}

// Tool pairs a declaration handed to the remote model with the local executor
// that backs it. The reserved transfer tool carries no executor; the router
// handles it.
type Tool struct {
	Declaration realtime.ToolDeclaration

	execute func(ctx context.Context, arguments json.RawMessage, call Call) (any, error)
}

// HasExecutor reports whether a local executor backs this tool.
func (t Tool) HasExecutor() bool {
	return t.execute != nil
}

// Execute parses the raw arguments and runs the local executor.
func (t Tool) Execute(ctx context.Context, arguments json.RawMessage, call Call) (any, error) {
	if t.execute == nil {
		return nil, fmt.Errorf("tool %q has no local executor", t.Declaration.Name)
	}
	return t.execute(ctx, arguments, call)
}

// NewTool declares a tool whose executor receives the arguments parsed into
// T. The parameter schema is handed verbatim to the remote model and must
// match T's JSON shape.
func NewTool[T any](
	name string,
	description string,
	parameters map[string]realtime.ParameterSchema,
	execute func(ctx context.Context, arguments T, call Call) (any, error),
) Tool {
	return Tool{
		Declaration: realtime.ToolDeclaration{
			Type:        "function",
			Name:        name,
			Description: description,
			Parameters: realtime.ParameterSchema{
				Type:       "object",
				Properties: parameters,
			},
		},
		execute: func(ctx context.Context, arguments json.RawMessage, call Call) (any, error) {
			var parsed T
			if err := json.Unmarshal(arguments, &parsed); err != nil {
				return nil, fmt.Errorf("failed to parse arguments for tool %q: %w", name, err)
			}
			return execute(ctx, parsed, call)
		},
	}
}
