package chat

import (
	"context"

	"parley/internal/domain/models/agent"
	chatModels "parley/internal/domain/models/chat"
)

// HistoryMessage is one entry of the ordered role/content history handed to
// the agent driver.
type HistoryMessage struct {
	Role    string
	Content string
}

// AgentEmit receives agent events as the driver produces them. Returning an
// error stops the drive; the driver propagates it unchanged.
type AgentEmit func(event agent.Event) error

// AgentDriver drives exactly one agent turn: history in, lazy event sequence
// out. Transient provider failures are retried internally and surfaced as
// agent.RetryEvents; only terminal failures return an error.
type AgentDriver interface {
	GenerateResponse(ctx context.Context, messages []HistoryMessage, emit AgentEmit) error
}

// StreamEmit receives public stream events (name + payload) in emission
// order. The transport layer serializes them as SSE. A non-nil return stops
// the turn; persistence of buffered state still runs before the error
// propagates.
type StreamEmit func(event string, data interface{}) error

// SendMessageRequest adds a user message to an existing conversation.
type SendMessageRequest struct {
	ConversationID string
	UserID         string
	Content        string
}

// CreateConversationRequest starts a new conversation from a first message.
// Title is optional; when empty it is derived from the message content.
type CreateConversationRequest struct {
	UserID  string
	Content string
	Title   string
}

// SendMessageResponse is the non-streaming result of one turn.
type SendMessageResponse struct {
	UserMessageID    string
	AssistantMessage *chatModels.Message
}

// CreateConversationResponse is the non-streaming result of the creation flow.
type CreateConversationResponse struct {
	Conversation     *chatModels.Conversation
	UserMessageID    string
	AssistantMessage *chatModels.Message
}

// ConversationService is the use-case layer binding authorization,
// persistence, and the agent driver.
type ConversationService interface {
	CreateConversation(ctx context.Context, req *CreateConversationRequest) (*CreateConversationResponse, error)
	CreateConversationStreaming(ctx context.Context, req *CreateConversationRequest, emit StreamEmit) error
	SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error)
	SendMessageStreaming(ctx context.Context, req *SendMessageRequest, emit StreamEmit) error

	ListConversations(ctx context.Context, userID string) ([]chatModels.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, []chatModels.Message, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}
