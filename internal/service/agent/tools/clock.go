package tools

import (
	"context"
	"fmt"
	"time"

	"parley/internal/domain/services/llm"
)

// ClockTool implements the 'current_time' tool.
type ClockTool struct {
	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewClockTool creates a new ClockTool instance.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

// Definition implements Tool.
func (t *ClockTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "current_time",
		Description: "Returns the current date and time, optionally in a named IANA timezone (default UTC).",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "IANA timezone name, e.g. \"America/New_York\" (default: UTC)",
				},
			},
		},
	}
}

// Execute implements Tool.
func (t *ClockTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	loc := time.UTC
	if tzVal, exists := input["timezone"]; exists {
		tz, ok := tzVal.(string)
		if !ok {
			return nil, fmt.Errorf("timezone must be a string")
		}
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", tz)
		}
		loc = parsed
	}

	now := t.now().In(loc)
	return map[string]interface{}{
		"timezone": loc.String(),
		"iso8601":  now.Format(time.RFC3339),
		"unix":     now.Unix(),
	}, nil
}
