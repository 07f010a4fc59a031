package llm

import (
	"context"
)

// ChatModel defines the interface all LLM provider adapters implement.
// One StreamChat call is one model invocation: the tool-execution loop lives
// above this interface, in the agent driver.
//
// Implementations hold no per-turn state and are safe for concurrent use
// across requests.
type ChatModel interface {
	// StreamChat starts a streaming model call and returns a channel of
	// stream events. The channel is closed when the call finishes; a
	// terminal failure is delivered as StreamEvent.Error before close.
	StreamChat(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "anthropic", "lorem")
	Name() string

	// SupportsModel returns true if the provider serves the given model.
	SupportsModel(model string) bool
}

// GenerateRequest contains the parameters for one model invocation.
type GenerateRequest struct {
	// Messages is the conversation history, oldest first.
	Messages []Message

	// Model is the model identifier (e.g., "claude-haiku-4-5-20251001")
	Model string

	// System is an optional system prompt.
	System *string

	// MaxTokens caps the generated output.
	MaxTokens int

	// Tools are the definitions exposed to the model for this call.
	Tools []ToolDefinition
}

// Message is a single message in the provider conversation. Role "tool"
// carries tool results back to the model; it never surfaces to end users.
type Message struct {
	// Role is "user", "assistant", or "tool"
	Role string

	// Text is the plain text content (user and assistant messages).
	Text string

	// ToolUses are the tool invocations an assistant message requested.
	ToolUses []ToolUseBlock

	// ToolResults carry executed tool outcomes (role "tool" only).
	ToolResults []ToolResultBlock
}

// ToolUseBlock is a complete tool invocation request from the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResultBlock is the outcome of one tool execution, addressed back to
// the requesting tool_use block.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object describing the tool input.
	InputSchema map[string]interface{}
}

// StreamEvent is a single low-level chunk from a streaming model call.
// Exactly one field is set.
type StreamEvent struct {
	// Delta is an incremental text fragment.
	Delta *TextDelta

	// ToolUse is a completed tool invocation request.
	ToolUse *ToolUseBlock

	// Metadata is the final usage accounting, sent once before close.
	Metadata *StreamMetadata

	// Error terminates the stream.
	Error error
}

// Text delta sources. Deltas attributed to tool-result content must never
// surface as visible assistant text.
const (
	DeltaSourceAssistant  = "assistant"
	DeltaSourceToolResult = "tool_result"
)

// TextDelta is a raw text chunk. Content is provider-shaped: a plain string,
// a list of {type:"text", text:...} objects, or a list of strings. The agent
// driver normalizes it to a single string.
type TextDelta struct {
	Source  string
	Content interface{}
}

// StreamMetadata is the final usage accounting for one model call.
type StreamMetadata struct {
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// Stop reasons shared across providers.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
	StopReasonToolUse   = "tool_use"
)
