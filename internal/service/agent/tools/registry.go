package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"parley/internal/domain/services/llm"
)

// Call represents a single tool invocation request.
type Call struct {
	ID    string                 `json:"id"`    // tool_call_id from the model
	Name  string                 `json:"name"`  // tool name
	Input map[string]interface{} `json:"input"` // tool parameters
}

// Result represents the result of a tool execution. Exactly one of
// Output/Err is meaningful, indicated by IsError.
type Result struct {
	ID      string `json:"id"`       // tool_call_id (matches Call.ID)
	Name    string `json:"name"`     // tool name (matches Call.Name)
	Output  string `json:"output"`   // rendered execution result ("" if error)
	Err     error  `json:"error"`    // execution error (nil if success)
	IsError bool   `json:"is_error"` // whether execution failed
}

// Registry manages tools and handles tool execution. It is an explicitly
// constructed, injected instance - never a package-level singleton - so tests
// can swap in fake tool sets. It is thread-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition().Name] = tool
}

// Get retrieves a tool by name.
// Returns nil if the tool is not registered.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all registered tool definitions, sorted by name so the
// provider request is deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a single tool and returns the result.
// A missing tool or a failed execution is reported in the Result, not as a
// separate error - the agent loop feeds failures back to the model.
func (r *Registry) Execute(ctx context.Context, call Call) Result {
	tool := r.Get(call.Name)
	if tool == nil {
		return Result{
			ID:      call.ID,
			Name:    call.Name,
			Err:     fmt.Errorf("tool not found: %s", call.Name),
			IsError: true,
		}
	}

	value, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return Result{
			ID:      call.ID,
			Name:    call.Name,
			Err:     err,
			IsError: true,
		}
	}

	output, err := renderOutput(value)
	if err != nil {
		return Result{
			ID:      call.ID,
			Name:    call.Name,
			Err:     fmt.Errorf("tool %s returned unserializable result: %w", call.Name, err),
			IsError: true,
		}
	}

	return Result{
		ID:     call.ID,
		Name:   call.Name,
		Output: output,
	}
}

// ExecuteParallel runs multiple tools concurrently and returns results in the
// same order. Context cancellation stops all ongoing executions.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []Call) []Result {
	if len(calls) == 0 {
		return []Result{}
	}

	results := make([]Result, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(index int, toolCall Call) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[index] = Result{
					ID:      toolCall.ID,
					Name:    toolCall.Name,
					Err:     ctx.Err(),
					IsError: true,
				}
				return
			default:
			}

			results[index] = r.Execute(ctx, toolCall)
		}(i, call)
	}

	wg.Wait()

	return results
}

// renderOutput converts a tool return value to the string fed back to the
// model. Strings pass through unchanged; everything else is JSON-encoded.
func renderOutput(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
