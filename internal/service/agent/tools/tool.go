package tools

import (
	"context"

	"parley/internal/domain/services/llm"
)

// Tool is a callable exposed to the agent. Implementations must be
// thread-safe and respect context cancellation.
type Tool interface {
	// Definition describes the tool to the model (name, description,
	// JSON Schema for the input).
	Definition() llm.ToolDefinition

	// Execute runs the tool with the given input parameters.
	// The returned value must be JSON-serializable (maps, slices, primitives).
	Execute(ctx context.Context, input map[string]interface{}) (interface{}, error)
}
