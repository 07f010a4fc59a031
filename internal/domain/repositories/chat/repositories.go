package chat

import (
	"context"

	chatModels "parley/internal/domain/models/chat"
)

// ConversationRepository persists conversations. Create is immediately
// visible to subsequent reads within the same transaction.
type ConversationRepository interface {
	Create(ctx context.Context, conv *chatModels.Conversation) error
	FindByID(ctx context.Context, id string) (*chatModels.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]chatModels.Conversation, error)
	// Touch bumps the conversation's updated_at to now.
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository persists conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *chatModels.Message) error
	// ListByConversation returns messages oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]chatModels.Message, error)
}

// ToolCallRepository persists tool calls belonging to assistant messages.
type ToolCallRepository interface {
	// CreateBatch inserts tool calls preserving slice order (creation order).
	CreateBatch(ctx context.Context, calls []chatModels.ToolCall) error
	ListByMessage(ctx context.Context, messageID string) ([]chatModels.ToolCall, error)
}
