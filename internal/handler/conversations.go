// Package handler exposes the conversation API over HTTP, including the SSE
// streaming surface.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"parley/internal/domain"
	chatmodels "parley/internal/domain/models/chat"
	domainchat "parley/internal/domain/services/chat"
	domainllm "parley/internal/domain/services/llm"
	"parley/internal/handler/sse"
	"parley/internal/httputil"
)

// ConversationHandler serves the conversation routes.
type ConversationHandler struct {
	service   domainchat.ConversationService
	sseConfig *sse.Config
	logger    *slog.Logger
}

// NewConversationHandler creates the handler.
func NewConversationHandler(service domainchat.ConversationService, sseConfig *sse.Config, logger *slog.Logger) *ConversationHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationHandler{
		service:   service,
		sseConfig: sseConfig,
		logger:    logger,
	}
}

// createConversationRequest is the POST /api/conversations body.
type createConversationRequest struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Stream  bool   `json:"stream"`
}

// sendMessageRequest is the POST /api/conversations/{id}/messages body.
type sendMessageRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// CreateConversation handles POST /api/conversations.
// With "stream": true the response is an SSE stream; otherwise the whole
// turn runs before a single JSON response.
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var body createConversationRequest
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &domainchat.CreateConversationRequest{
		UserID:  httputil.GetUserID(r),
		Content: body.Content,
		Title:   body.Title,
	}

	if wantsStream(r, body.Stream) {
		h.streamTurn(w, r, func(emit domainchat.StreamEmit) error {
			return h.service.CreateConversationStreaming(r.Context(), req, emit)
		})
		return
	}

	resp, err := h.service.CreateConversation(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// SendMessage handles POST /api/conversations/{id}/messages.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, err := conversationIDFromPath(r)
	if err != nil {
		h.handleError(w, err)
		return
	}

	var body sendMessageRequest
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &domainchat.SendMessageRequest{
		ConversationID: conversationID,
		UserID:         httputil.GetUserID(r),
		Content:        body.Content,
	}

	if wantsStream(r, body.Stream) {
		h.streamTurn(w, r, func(emit domainchat.StreamEmit) error {
			return h.service.SendMessageStreaming(r.Context(), req, emit)
		})
		return
	}

	resp, err := h.service.SendMessage(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// ListConversations handles GET /api/conversations.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.ListConversations(r.Context(), httputil.GetUserID(r))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// GetConversation handles GET /api/conversations/{id}.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := conversationIDFromPath(r)
	if err != nil {
		h.handleError(w, err)
		return
	}

	conv, messages, err := h.service.GetConversation(r.Context(), conversationID, httputil.GetUserID(r))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := conversationIDFromPath(r)
	if err != nil {
		h.handleError(w, err)
		return
	}

	if err := h.service.DeleteConversation(r.Context(), conversationID, httputil.GetUserID(r)); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wantsStream honors either the body flag or ?stream=true.
func wantsStream(r *http.Request, bodyFlag bool) bool {
	return bodyFlag || r.URL.Query().Get("stream") == "true"
}

// conversationIDFromPath validates the {id} path segment. Postgres rejects a
// malformed UUID with an opaque cast error, so it is caught at the edge and
// reads the same as a missing conversation.
func conversationIDFromPath(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", &domain.NotFoundError{Message: "conversation not found"}
	}
	return id, nil
}

// streamTurn runs one turn over SSE. Once the stream is open, failures are
// reported as a terminal "error" event, not an HTTP status - the headers are
// already gone.
func (h *ConversationHandler) streamTurn(w http.ResponseWriter, r *http.Request, run func(domainchat.StreamEmit) error) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	// Remember the user message ID from the start event so the terminal
	// error event can tell the client its input was not lost.
	var userMessageID *string
	emit := func(event string, data interface{}) error {
		if se, ok := data.(chatmodels.StartEvent); ok {
			id := se.UserMessageID
			userMessageID = &id
		}
		return writer.Emit(event, data)
	}

	if err := run(emit); err != nil {
		h.logger.Error("streaming turn failed", "error", err, "path", r.URL.Path)
		// Best effort: the client may already be gone.
		_ = writer.Emit(chatmodels.StreamEventError, chatmodels.ErrorEvent{
			Error:         publicErrorMessage(err),
			UserMessageID: userMessageID,
		})
	}
}

// handleError converts domain errors to HTTP responses.
func (h *ConversationHandler) handleError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	// Repositories wrap bare sentinels rather than typed errors.
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "resource not found")
		return
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, "access denied")
		return
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if isProviderError(err) {
		h.logger.Error("provider error", "error", err)
		httputil.RespondError(w, http.StatusBadGateway, publicErrorMessage(err))
		return
	}

	h.logger.Error("unexpected error", "error", err)
	httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
}

func isProviderError(err error) bool {
	var (
		rateErr   *domainllm.RateLimitError
		connErr   *domainllm.ConnectionError
		statusErr *domainllm.StatusError
		ctxErr    *domainllm.ContextLengthError
		streamErr *domainllm.StreamError
	)
	return errors.As(err, &rateErr) ||
		errors.As(err, &connErr) ||
		errors.As(err, &statusErr) ||
		errors.As(err, &ctxErr) ||
		errors.As(err, &streamErr)
}

// publicErrorMessage maps internal errors onto client-safe text.
func publicErrorMessage(err error) string {
	var (
		rateErr *domainllm.RateLimitError
		ctxErr  *domainllm.ContextLengthError
	)
	switch {
	case errors.As(err, &rateErr):
		return "the assistant is overloaded, please try again shortly"
	case errors.As(err, &ctxErr):
		return "the conversation is too long for the model"
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	default:
		return "assistant response failed"
	}
}
