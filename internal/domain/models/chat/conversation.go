package chat

import (
	"time"
)

// Conversation is a chat session owned by a single user.
// Messages within a conversation are ordered by creation time.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single user or assistant message within a conversation.
// The metadata columns (model, token counts, response time, cost) are NULL
// unless the provider reported usage data; see service/chat.MetadataService
// for the nullability rules.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	Model          *string   `json:"model,omitempty" db:"model"`
	InputTokens    *int      `json:"input_tokens,omitempty" db:"input_tokens"`
	OutputTokens   *int      `json:"output_tokens,omitempty" db:"output_tokens"`
	ResponseTimeMS *int      `json:"response_time_ms,omitempty" db:"response_time_ms"`
	CostUSD        *float64  `json:"cost_usd,omitempty" db:"cost_usd"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	// Loaded separately (not a DB column)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Tool call terminal states
const (
	ToolCallStatusPending = "pending"
	ToolCallStatusSuccess = "success"
	ToolCallStatusError   = "error"
)

// ToolCall is one persisted tool invocation belonging to an assistant
// message. A call that never received a result keeps status "pending" -
// that is deliberate evidence of an interrupted execution, not a bug.
type ToolCall struct {
	// ID is assigned by the database in insertion order, so ordering by it
	// reproduces creation order.
	ID          int64                  `json:"id" db:"id"`
	MessageID   string                 `json:"message_id" db:"message_id"`
	ToolCallID  string                 `json:"tool_call_id" db:"tool_call_id"`
	ToolName    string                 `json:"tool_name" db:"tool_name"`
	InputData   map[string]interface{} `json:"input_data" db:"input_data"`
	Output      *string                `json:"output,omitempty" db:"output"`
	Error       *string                `json:"error,omitempty" db:"error"`
	Status      string                 `json:"status" db:"status"`
	StartedAt   time.Time              `json:"started_at" db:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
}
