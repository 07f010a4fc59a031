package tools

import (
	"context"
	"errors"
	"fmt"

	"parley/internal/domain/services/llm"
)

// CalculatorTool implements the 'calculator' tool for basic arithmetic.
// Models are notoriously bad at arithmetic; this keeps sums honest.
type CalculatorTool struct{}

// NewCalculatorTool creates a new CalculatorTool instance.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

// Definition implements Tool.
func (t *CalculatorTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "calculator",
		Description: "Performs basic arithmetic on two numbers. Supported operations: add, subtract, multiply, divide.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"operation": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"add", "subtract", "multiply", "divide"},
					"description": "The arithmetic operation to perform",
				},
				"a": map[string]interface{}{
					"type":        "number",
					"description": "First operand",
				},
				"b": map[string]interface{}{
					"type":        "number",
					"description": "Second operand",
				},
			},
			"required": []string{"operation", "a", "b"},
		},
	}
}

// Execute implements Tool.
// Input parameters:
//   - operation (string, required): "add", "subtract", "multiply", or "divide"
//   - a, b (number, required): operands
func (t *CalculatorTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	operation, ok := input["operation"].(string)
	if !ok {
		return nil, errors.New("missing required parameter: operation (string)")
	}

	a, ok := input["a"].(float64)
	if !ok {
		return nil, errors.New("missing required parameter: a (number)")
	}

	b, ok := input["b"].(float64)
	if !ok {
		return nil, errors.New("missing required parameter: b (number)")
	}

	var result float64
	switch operation {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		result = a / b
	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}

	return map[string]interface{}{
		"operation": operation,
		"a":         a,
		"b":         b,
		"result":    result,
	}, nil
}
