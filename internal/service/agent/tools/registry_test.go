package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/internal/domain/services/llm"
)

// mockTool is a test implementation of Tool.
type mockTool struct {
	name       string
	delay      time.Duration
	shouldFail bool
	execCount  int
	mu         sync.Mutex
}

func (m *mockTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        m.name,
		Description: "mock tool",
		InputSchema: map[string]interface{}{"type": "object"},
	}
}

func (m *mockTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	m.mu.Lock()
	m.execCount++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.shouldFail {
		return nil, errors.New("mock tool failed")
	}

	return m.name + " ok", nil
}

func (m *mockTool) getExecCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCount
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	tool := &mockTool{name: "test_tool"}

	registry.Register(tool)

	retrieved := registry.Get("test_tool")
	if retrieved == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if retrieved != tool {
		t.Error("Get returned different tool instance")
	}

	if registry.Get("non_existent") != nil {
		t.Error("Get returned non-nil for non-existent tool")
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&mockTool{name: "zebra"})
	registry.Register(&mockTool{name: "alpha"})
	registry.Register(&mockTool{name: "mango"})

	defs := registry.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"alpha", "mango", "zebra"}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("definition %d: got %s, want %s", i, def.Name, want[i])
		}
	}
}

func TestRegistry_Execute(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	t.Run("successful execution", func(t *testing.T) {
		registry.Register(&mockTool{name: "success_tool"})

		result := registry.Execute(ctx, Call{
			ID:    "call_1",
			Name:  "success_tool",
			Input: map[string]interface{}{"param": "value"},
		})

		if result.IsError {
			t.Errorf("expected success, got error: %v", result.Err)
		}
		if result.ID != "call_1" {
			t.Errorf("expected ID 'call_1', got %s", result.ID)
		}
		if result.Output != "success_tool ok" {
			t.Errorf("unexpected output: %q", result.Output)
		}
	})

	t.Run("tool not found", func(t *testing.T) {
		result := registry.Execute(ctx, Call{ID: "call_2", Name: "non_existent_tool"})

		if !result.IsError {
			t.Error("expected error for non-existent tool")
		}
		if result.Err == nil || !strings.Contains(result.Err.Error(), "tool not found") {
			t.Errorf("expected tool not found error, got: %v", result.Err)
		}
		if result.ID != "call_2" {
			t.Errorf("expected ID 'call_2', got %s", result.ID)
		}
	})

	t.Run("tool execution failure", func(t *testing.T) {
		registry.Register(&mockTool{name: "fail_tool", shouldFail: true})

		result := registry.Execute(ctx, Call{ID: "call_3", Name: "fail_tool"})

		if !result.IsError {
			t.Error("expected error for failed tool execution")
		}
		if result.Err == nil {
			t.Error("expected non-nil error")
		}
	})

	t.Run("non-string results are JSON encoded", func(t *testing.T) {
		registry.Register(&jsonTool{})

		result := registry.Execute(ctx, Call{ID: "call_4", Name: "json_tool"})

		if result.IsError {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if result.Output != `{"answer":42}` {
			t.Errorf("unexpected output: %q", result.Output)
		}
	})
}

// jsonTool returns a structured value to exercise output rendering.
type jsonTool struct{}

func (j *jsonTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: "json_tool", InputSchema: map[string]interface{}{"type": "object"}}
}

func (j *jsonTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"answer": 42}, nil
}

func TestRegistry_ExecuteParallel(t *testing.T) {
	t.Run("empty calls", func(t *testing.T) {
		registry := NewRegistry()
		results := registry.ExecuteParallel(context.Background(), []Call{})

		if len(results) != 0 {
			t.Errorf("expected 0 results, got %d", len(results))
		}
	})

	t.Run("order preservation", func(t *testing.T) {
		registry := NewRegistry()

		// Different delays so completion order differs from call order
		delays := []time.Duration{
			50 * time.Millisecond,
			10 * time.Millisecond,
			100 * time.Millisecond,
		}
		for i, delay := range delays {
			registry.Register(&mockTool{name: fmt.Sprintf("tool_%d", i), delay: delay})
		}

		calls := []Call{
			{ID: "call_0", Name: "tool_0"},
			{ID: "call_1", Name: "tool_1"},
			{ID: "call_2", Name: "tool_2"},
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		for i, result := range results {
			expectedID := fmt.Sprintf("call_%d", i)
			if result.ID != expectedID {
				t.Errorf("result %d has wrong ID: got %s, expected %s", i, result.ID, expectedID)
			}
			if result.IsError {
				t.Errorf("result %d has error: %v", i, result.Err)
			}
		}
	})

	t.Run("context cancellation propagation", func(t *testing.T) {
		registry := NewRegistry()
		for i := 0; i < 3; i++ {
			registry.Register(&mockTool{name: fmt.Sprintf("tool_%d", i), delay: 500 * time.Millisecond})
		}

		calls := []Call{
			{ID: "call_0", Name: "tool_0"},
			{ID: "call_1", Name: "tool_1"},
			{ID: "call_2", Name: "tool_2"},
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := registry.ExecuteParallel(ctx, calls)

		for i, result := range results {
			if !result.IsError {
				t.Errorf("result %d should have error due to context cancellation", i)
			}
			if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
				t.Errorf("result %d has wrong error type: %v", i, result.Err)
			}
		}
	})

	t.Run("mixed success and failure", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(&mockTool{name: "success_tool"})
		registry.Register(&mockTool{name: "fail_tool", shouldFail: true})

		calls := []Call{
			{ID: "call_0", Name: "success_tool"},
			{ID: "call_1", Name: "fail_tool"},
			{ID: "call_2", Name: "non_existent"},
			{ID: "call_3", Name: "success_tool"},
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 4 {
			t.Fatalf("expected 4 results, got %d", len(results))
		}
		wantErr := []bool{false, true, true, false}
		for i, result := range results {
			if result.IsError != wantErr[i] {
				t.Errorf("result %d: IsError=%v, want %v (err: %v)", i, result.IsError, wantErr[i], result.Err)
			}
		}
	})

	t.Run("high concurrency thread-safety", func(t *testing.T) {
		registry := NewRegistry()
		tool := &mockTool{name: "concurrent_tool"}
		registry.Register(tool)

		calls := make([]Call, 100)
		for i := 0; i < 100; i++ {
			calls[i] = Call{
				ID:    fmt.Sprintf("call_%d", i),
				Name:  "concurrent_tool",
				Input: map[string]interface{}{"index": i},
			}
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 100 {
			t.Fatalf("expected 100 results, got %d", len(results))
		}
		for i, result := range results {
			if result.IsError {
				t.Errorf("result %d has error: %v", i, result.Err)
			}
		}
		if tool.getExecCount() != 100 {
			t.Errorf("expected 100 executions, got %d", tool.getExecCount())
		}
	})
}
