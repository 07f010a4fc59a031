package chat

import (
	"encoding/json"
	"fmt"
)

// Public stream event type constants. These are the caller-facing events the
// conversation orchestrator emits; the transport layer serializes them as SSE.
const (
	StreamEventCreated       = "created"         // Conversation created (creation flow only)
	StreamEventStart         = "start"           // User message persisted, generation starting
	StreamEventToolCallStart = "tool_call_start" // Model requested a tool invocation
	StreamEventToolCallEnd   = "tool_call_end"   // Tool finished (success or error)
	StreamEventDelta         = "delta"           // Incremental assistant text
	StreamEventRetry         = "retry"           // Transient provider failure, backing off
	StreamEventEnd           = "end"             // Assistant message persisted
	StreamEventError         = "error"           // Turn aborted (transport-level)
)

// CreatedEvent is emitted first on the conversation-creation flow.
type CreatedEvent struct {
	Conversation  *Conversation `json:"conversation"`
	UserMessageID string        `json:"user_message_id"`
}

// StartEvent signals the user message is durable and generation has begun.
type StartEvent struct {
	UserMessageID string `json:"user_message_id"`
}

// ToolCallStartEvent mirrors an agent tool-call request to the client.
type ToolCallStartEvent struct {
	ToolCallID string                 `json:"tool_call_id"`
	ToolName   string                 `json:"tool_name"`
	Input      map[string]interface{} `json:"input"`
}

// ToolCallEndEvent carries the outcome of one tool execution.
// Exactly one of Output/Error is set.
type ToolCallEndEvent struct {
	ToolCallID string  `json:"tool_call_id"`
	Output     *string `json:"output"`
	Error      *string `json:"error"`
}

// DeltaEvent is an incremental fragment of assistant text.
type DeltaEvent struct {
	Delta string `json:"delta"`
}

// RetryEvent surfaces backoff progress so the client can show "retrying".
type RetryEvent struct {
	Attempt     int     `json:"attempt"`
	MaxAttempts int     `json:"max_attempts"`
	ErrorType   string  `json:"error_type"`
	Delay       float64 `json:"delay"` // seconds
}

// EndEvent is terminal for a successful turn. It is only emitted after all
// delta and tool_call_* events for the turn.
type EndEvent struct {
	AssistantMessageID string            `json:"assistant_message_id"`
	Content            string            `json:"content"`
	ToolCalls          []ToolCallSummary `json:"tool_calls"`
}

// ToolCallSummary is the per-call payload inside EndEvent.
type ToolCallSummary struct {
	ToolCallID string  `json:"tool_call_id"`
	Output     *string `json:"output"`
	Error      *string `json:"error"`
}

// ErrorEvent is written by the transport when a turn aborts. UserMessageID is
// included when the user's input was already persisted, so the client can
// reconcile that nothing was lost.
type ErrorEvent struct {
	Error         string  `json:"error"`
	UserMessageID *string `json:"user_message_id,omitempty"`
}

// FormatSSE formats a stream event for transmission:
//
//	event: event_name
//	data: {"field": "value"}
//	\n
func FormatSSE(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SSE event data: %w", err)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)), nil
}
