// Package chat implements the conversation use cases: authorization,
// persistence, and driving agent turns. The invariant this package exists to
// uphold is that whatever an agent turn produced is persisted, whether the
// turn finished, failed, or the consumer walked away mid-stream.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"parley/internal/domain"
	agentmodels "parley/internal/domain/models/agent"
	chatmodels "parley/internal/domain/models/chat"
	"parley/internal/domain/repositories"
	chatrepo "parley/internal/domain/repositories/chat"
	domainchat "parley/internal/domain/services/chat"
)

const maxContentRunes = 32768

// Service implements domainchat.ConversationService.
type Service struct {
	conversations chatrepo.ConversationRepository
	messages      chatrepo.MessageRepository
	toolCalls     chatrepo.ToolCallRepository
	txManager     repositories.TransactionManager
	driver        domainchat.AgentDriver
	metadata      *MetadataService
	logger        *slog.Logger
}

// NewService creates the conversation service.
func NewService(
	conversations chatrepo.ConversationRepository,
	messages chatrepo.MessageRepository,
	toolCalls chatrepo.ToolCallRepository,
	txManager repositories.TransactionManager,
	driver domainchat.AgentDriver,
	metadata *MetadataService,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		toolCalls:     toolCalls,
		txManager:     txManager,
		driver:        driver,
		metadata:      metadata,
		logger:        logger,
	}
}

// discardEmit is used by the non-streaming operations.
func discardEmit(string, interface{}) error { return nil }

// CreateConversation starts a conversation from a first message and runs one
// full turn, returning everything at once.
func (s *Service) CreateConversation(ctx context.Context, req *domainchat.CreateConversationRequest) (*domainchat.CreateConversationResponse, error) {
	conv, userMsg, err := s.createConversationWithMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.runTurn(ctx, conv, discardEmit)
	if err != nil {
		return nil, err
	}

	return &domainchat.CreateConversationResponse{
		Conversation:     conv,
		UserMessageID:    userMsg.ID,
		AssistantMessage: assistantMsg,
	}, nil
}

// CreateConversationStreaming starts a conversation and streams the first
// turn. Event order: created, start, then the turn events.
func (s *Service) CreateConversationStreaming(ctx context.Context, req *domainchat.CreateConversationRequest, emit domainchat.StreamEmit) error {
	conv, userMsg, err := s.createConversationWithMessage(ctx, req)
	if err != nil {
		return err
	}

	if err := emit(chatmodels.StreamEventCreated, chatmodels.CreatedEvent{
		Conversation:  conv,
		UserMessageID: userMsg.ID,
	}); err != nil {
		return err
	}
	if err := emit(chatmodels.StreamEventStart, chatmodels.StartEvent{
		UserMessageID: userMsg.ID,
	}); err != nil {
		return err
	}

	_, err = s.runTurn(ctx, conv, emit)
	return err
}

// SendMessage adds a user message to an existing conversation and runs one
// turn without streaming.
func (s *Service) SendMessage(ctx context.Context, req *domainchat.SendMessageRequest) (*domainchat.SendMessageResponse, error) {
	conv, userMsg, err := s.appendUserMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.runTurn(ctx, conv, discardEmit)
	if err != nil {
		return nil, err
	}

	return &domainchat.SendMessageResponse{
		UserMessageID:    userMsg.ID,
		AssistantMessage: assistantMsg,
	}, nil
}

// SendMessageStreaming adds a user message and streams the turn.
func (s *Service) SendMessageStreaming(ctx context.Context, req *domainchat.SendMessageRequest, emit domainchat.StreamEmit) error {
	conv, userMsg, err := s.appendUserMessage(ctx, req)
	if err != nil {
		return err
	}

	if err := emit(chatmodels.StreamEventStart, chatmodels.StartEvent{
		UserMessageID: userMsg.ID,
	}); err != nil {
		return err
	}

	_, err = s.runTurn(ctx, conv, emit)
	return err
}

// ListConversations returns the user's conversations, most recently updated
// first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]chatmodels.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

// GetConversation returns a conversation with its full message history.
// Tool calls are attached to their assistant messages.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*chatmodels.Conversation, []chatmodels.Message, error) {
	conv, err := s.authorize(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	for i := range messages {
		if messages[i].Role != chatmodels.RoleAssistant {
			continue
		}
		calls, err := s.toolCalls.ListByMessage(ctx, messages[i].ID)
		if err != nil {
			return nil, nil, err
		}
		messages[i].ToolCalls = calls
	}

	return conv, messages, nil
}

// DeleteConversation removes a conversation and everything under it.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.conversations.Delete(ctx, conversationID)
}

// authorize loads the conversation and checks ownership.
func (s *Service) authorize(ctx context.Context, conversationID, userID string) (*chatmodels.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, &domain.ForbiddenError{Message: "conversation belongs to another user"}
	}
	return conv, nil
}

func (s *Service) createConversationWithMessage(ctx context.Context, req *domainchat.CreateConversationRequest) (*chatmodels.Conversation, *chatmodels.Message, error) {
	if err := validateContent(req.Content); err != nil {
		return nil, nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = deriveTitle(req.Content)
	}

	conv := &chatmodels.Conversation{
		UserID: req.UserID,
		Title:  title,
	}
	userMsg := &chatmodels.Message{
		Role:    chatmodels.RoleUser,
		Content: req.Content,
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.conversations.Create(txCtx, conv); err != nil {
			return err
		}
		userMsg.ConversationID = conv.ID
		return s.messages.Create(txCtx, userMsg)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, userMsg, nil
}

func (s *Service) appendUserMessage(ctx context.Context, req *domainchat.SendMessageRequest) (*chatmodels.Conversation, *chatmodels.Message, error) {
	if err := validateContent(req.Content); err != nil {
		return nil, nil, err
	}

	conv, err := s.authorize(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, nil, err
	}

	userMsg := &chatmodels.Message{
		ConversationID: conv.ID,
		Role:           chatmodels.RoleUser,
		Content:        req.Content,
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.messages.Create(txCtx, userMsg); err != nil {
			return err
		}
		return s.conversations.Touch(txCtx, conv.ID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	return conv, userMsg, nil
}

// runTurn drives one agent turn and always finalizes. The drive error, when
// present, wins over the emit of the terminal event: the caller decides how
// to surface it, but the buffered state has already been persisted.
func (s *Service) runTurn(ctx context.Context, conv *chatmodels.Conversation, emit domainchat.StreamEmit) (*chatmodels.Message, error) {
	history, err := s.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	st := newTurnState()
	driveErr := s.driver.GenerateResponse(ctx, history, func(ev agentmodels.Event) error {
		return st.handle(ev, emit)
	})

	msg, persistErr := s.finalizeTurn(ctx, conv.ID, st)
	if persistErr != nil {
		s.logger.Error("failed to finalize turn",
			"conversation_id", conv.ID, "error", persistErr, "drive_error", driveErr)
	}

	if msg != nil {
		// Best effort: after a drive error or consumer stop the emit
		// target is usually gone.
		if emitErr := emit(chatmodels.StreamEventEnd, buildEndEvent(msg)); emitErr != nil && driveErr == nil && persistErr == nil {
			return msg, emitErr
		}
	}

	if driveErr != nil {
		return msg, driveErr
	}
	if persistErr != nil {
		return msg, persistErr
	}
	return msg, nil
}

func (s *Service) loadHistory(ctx context.Context, conversationID string) ([]domainchat.HistoryMessage, error) {
	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]domainchat.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, domainchat.HistoryMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return history, nil
}

// finalizeTurn persists whatever the turn buffered: the assistant text and
// every tool call, including ones still pending. Returns (nil, nil) when the
// turn produced nothing at all. The persist runs on a context that survives
// request cancellation.
func (s *Service) finalizeTurn(ctx context.Context, conversationID string, st *turnState) (*chatmodels.Message, error) {
	content := st.content
	if !st.complete {
		content = st.deltas.String()
	}
	if content == "" && len(st.order) == 0 {
		return nil, nil
	}

	persistCtx := context.WithoutCancel(ctx)

	msg := &chatmodels.Message{
		ConversationID: conversationID,
		Role:           chatmodels.RoleAssistant,
		Content:        content,
	}
	meta, metaErr := s.metadata.BuildFromEvent(st.meta)
	if metaErr != nil {
		// Bad usage counters must not cost us the message itself.
		s.logger.Warn("discarding invalid usage metadata",
			"conversation_id", conversationID, "error", metaErr)
		meta = MessageMetadata{}
	}
	s.metadata.ApplyToMessage(msg, meta)

	err := s.txManager.ExecTx(persistCtx, func(txCtx context.Context) error {
		if err := s.messages.Create(txCtx, msg); err != nil {
			return err
		}
		if len(st.order) > 0 {
			calls := make([]chatmodels.ToolCall, 0, len(st.order))
			for _, id := range st.order {
				call := *st.calls[id]
				call.MessageID = msg.ID
				calls = append(calls, call)
			}
			if err := s.toolCalls.CreateBatch(txCtx, calls); err != nil {
				return err
			}
			msg.ToolCalls = calls
		}
		return s.conversations.Touch(txCtx, conversationID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	return msg, nil
}

// turnState buffers everything an in-flight turn has produced so far.
type turnState struct {
	deltas   strings.Builder
	content  string
	complete bool
	order    []string
	calls    map[string]*chatmodels.ToolCall
	meta     *agentmodels.MessageMetadataEvent
}

func newTurnState() *turnState {
	return &turnState{
		calls: make(map[string]*chatmodels.ToolCall),
	}
}

// handle applies one agent event to the buffer and mirrors it to the public
// stream. A repeated ToolCallEvent for a known ID updates the buffered input
// in place without duplicating the entry.
func (st *turnState) handle(ev agentmodels.Event, emit domainchat.StreamEmit) error {
	switch e := ev.(type) {
	case agentmodels.ToolCallEvent:
		if existing, ok := st.calls[e.ToolCallID]; ok {
			existing.InputData = e.Input
		} else {
			st.order = append(st.order, e.ToolCallID)
			st.calls[e.ToolCallID] = &chatmodels.ToolCall{
				ToolCallID: e.ToolCallID,
				ToolName:   e.ToolName,
				InputData:  e.Input,
				Status:     chatmodels.ToolCallStatusPending,
				StartedAt:  time.Now().UTC(),
			}
		}
		return emit(chatmodels.StreamEventToolCallStart, chatmodels.ToolCallStartEvent{
			ToolCallID: e.ToolCallID,
			ToolName:   e.ToolName,
			Input:      e.Input,
		})

	case agentmodels.ToolResultEvent:
		call, ok := st.calls[e.ToolCallID]
		if !ok {
			return fmt.Errorf("tool result for unknown tool call %q", e.ToolCallID)
		}
		now := time.Now().UTC()
		call.Output = e.Output
		call.Error = e.Error
		call.CompletedAt = &now
		if e.Error != nil {
			call.Status = chatmodels.ToolCallStatusError
		} else {
			call.Status = chatmodels.ToolCallStatusSuccess
		}
		return emit(chatmodels.StreamEventToolCallEnd, chatmodels.ToolCallEndEvent{
			ToolCallID: e.ToolCallID,
			Output:     e.Output,
			Error:      e.Error,
		})

	case agentmodels.TextDeltaEvent:
		st.deltas.WriteString(e.Delta)
		return emit(chatmodels.StreamEventDelta, chatmodels.DeltaEvent{Delta: e.Delta})

	case agentmodels.MessageCompleteEvent:
		st.content = e.Content
		st.complete = true
		return nil

	case agentmodels.MessageMetadataEvent:
		meta := e
		st.meta = &meta
		return nil

	case agentmodels.RetryEvent:
		// The next attempt restarts text from scratch. Tool calls that
		// already executed stay buffered - they really ran.
		st.deltas.Reset()
		return emit(chatmodels.StreamEventRetry, chatmodels.RetryEvent{
			Attempt:     e.Attempt,
			MaxAttempts: e.MaxAttempts,
			ErrorType:   e.ErrorType,
			Delay:       e.Delay.Seconds(),
		})

	default:
		return fmt.Errorf("unknown agent event %T", ev)
	}
}

func buildEndEvent(msg *chatmodels.Message) chatmodels.EndEvent {
	summaries := make([]chatmodels.ToolCallSummary, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		summaries = append(summaries, chatmodels.ToolCallSummary{
			ToolCallID: call.ToolCallID,
			Output:     call.Output,
			Error:      call.Error,
		})
	}
	return chatmodels.EndEvent{
		AssistantMessageID: msg.ID,
		Content:            msg.Content,
		ToolCalls:          summaries,
	}
}

func validateContent(content string) error {
	if err := validation.Validate(content,
		validation.Required,
		validation.RuneLength(1, maxContentRunes),
	); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("message content: %v", err)}
	}
	return nil
}

// deriveTitle builds a conversation title from the first message.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > 50 {
		title = strings.TrimSpace(string(runes[:50])) + "..."
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
