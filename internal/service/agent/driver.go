// Package agent drives one assistant turn against an LLM provider: it owns
// the retry loop, the tool-execution rounds, and the translation of raw
// provider chunks into the agent event model.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"parley/internal/config"
	agentmodels "parley/internal/domain/models/agent"
	chatsvc "parley/internal/domain/services/chat"
	"parley/internal/domain/services/llm"
	"parley/internal/service/agent/tools"
)

// emitError tags an error returned by the consumer's emit callback so the
// retry loop propagates it unchanged instead of classifying it.
type emitError struct {
	err error
}

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// Driver implements chat.AgentDriver on top of a single provider. It is
// stateless across turns and safe for concurrent use.
type Driver struct {
	provider llm.ChatModel
	registry *tools.Registry
	model    string
	system   *string
	cfg      config.ProviderConfig
	logger   *slog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver constructs a driver. The provider config is validated here so a
// misconfigured retry policy fails at startup, not mid-turn.
func NewDriver(provider llm.ChatModel, registry *tools.Registry, model string, system *string, cfg config.ProviderConfig, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		provider: provider,
		registry: registry,
		model:    model,
		system:   system,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}, nil
}

// GenerateResponse drives one turn. Transient provider failures restart the
// whole turn after an exponential backoff, with an agentmodels.RetryEvent
// emitted before each sleep. Errors returned by emit stop the turn
// immediately and propagate unchanged.
func (d *Driver) GenerateResponse(ctx context.Context, messages []chatsvc.HistoryMessage, emit chatsvc.AgentEmit) error {
	maxAttempts := d.cfg.MaxRetries + 1

	yield := func(ev agentmodels.Event) error {
		if err := emit(ev); err != nil {
			return &emitError{err: err}
		}
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.runAttempt(ctx, messages, yield)
		if err == nil {
			return nil
		}

		var ee *emitError
		if errors.As(err, &ee) {
			return ee.err
		}

		dec := classify(err, d.cfg.RetryDelay, attempt)
		if !dec.Retryable {
			d.logger.Error("agent turn failed",
				"error", err, "error_type", dec.ErrorType, "attempt", attempt)
			return dec.Terminal
		}
		lastErr = dec.Terminal
		if attempt == maxAttempts {
			d.logger.Error("agent turn exhausted retries",
				"error", err, "error_type", dec.ErrorType, "attempts", attempt)
			return lastErr
		}

		d.logger.Warn("agent turn retrying",
			"error", err, "error_type", dec.ErrorType,
			"attempt", attempt, "max_attempts", maxAttempts,
			"delay", dec.Delay)
		if err := yield(agentmodels.RetryEvent{
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			ErrorType:   dec.ErrorType,
			Delay:       dec.Delay,
		}); err != nil {
			var ee *emitError
			if errors.As(err, &ee) {
				return ee.err
			}
			return err
		}
		if err := d.sleep(ctx, dec.Delay); err != nil {
			return err
		}
	}
	return lastErr
}

// runAttempt performs one full attempt: repeated model calls with tool
// execution between them, until the model stops requesting tools or the
// round cap is reached.
func (d *Driver) runAttempt(ctx context.Context, history []chatsvc.HistoryMessage, yield chatsvc.AgentEmit) error {
	start := time.Now()
	msgs := convertHistory(history)

	var (
		full            strings.Builder
		afterToolRound  bool
		seen            = make(map[string]bool)
		totalIn         int
		totalOut        int
		reportedModel   string
		metadataPresent bool
	)

	for round := 0; round < d.cfg.MaxToolRounds; round++ {
		req := &llm.GenerateRequest{
			Messages:  msgs,
			Model:     d.model,
			System:    d.system,
			MaxTokens: d.cfg.MaxTokens,
			Tools:     d.registry.Definitions(),
		}

		stream, err := d.provider.StreamChat(ctx, req)
		if err != nil {
			return err
		}

		var (
			roundText  strings.Builder
			roundTools []llm.ToolUseBlock
			meta       *llm.StreamMetadata
		)

		for ev := range stream {
			switch {
			case ev.Error != nil:
				return ev.Error

			case ev.Delta != nil:
				// Deltas sourced from tool results are internal
				// plumbing and never surface as assistant text.
				if ev.Delta.Source == llm.DeltaSourceToolResult {
					continue
				}
				fragment := ExtractText(ev.Delta.Content)
				if fragment == "" {
					continue
				}
				if afterToolRound && full.Len() > 0 {
					fragment = "\n" + fragment
				}
				afterToolRound = false
				full.WriteString(fragment)
				roundText.WriteString(fragment)
				if err := yield(agentmodels.TextDeltaEvent{Delta: fragment}); err != nil {
					return err
				}

			case ev.ToolUse != nil:
				use := *ev.ToolUse
				if seen[use.ID] {
					continue
				}
				seen[use.ID] = true
				roundTools = append(roundTools, use)
				if err := yield(agentmodels.ToolCallEvent{
					ToolCallID: use.ID,
					ToolName:   use.Name,
					Input:      use.Input,
				}); err != nil {
					return err
				}

			case ev.Metadata != nil:
				meta = ev.Metadata
			}
		}

		if meta == nil {
			return &llm.StreamError{Message: "provider stream closed without metadata"}
		}
		if meta.InputTokens > 0 || meta.OutputTokens > 0 {
			metadataPresent = true
		}
		totalIn += meta.InputTokens
		totalOut += meta.OutputTokens
		if meta.Model != "" {
			reportedModel = meta.Model
		}

		if meta.StopReason != llm.StopReasonToolUse || len(roundTools) == 0 {
			break
		}

		resultBlocks, err := d.executeTools(ctx, roundTools, yield)
		if err != nil {
			return err
		}

		msgs = append(msgs,
			llm.Message{Role: "assistant", Text: roundText.String(), ToolUses: roundTools},
			llm.Message{Role: "tool", ToolResults: resultBlocks},
		)
		afterToolRound = true

		if round == d.cfg.MaxToolRounds-1 {
			d.logger.Warn("tool round cap reached, completing turn",
				"rounds", d.cfg.MaxToolRounds)
		}
	}

	if err := yield(agentmodels.MessageCompleteEvent{Content: full.String()}); err != nil {
		return err
	}

	if metadataPresent {
		model := reportedModel
		if model == "" {
			model = d.model
		}
		if err := yield(agentmodels.MessageMetadataEvent{
			InputTokens:    totalIn,
			OutputTokens:   totalOut,
			Model:          model,
			ResponseTimeMS: int(time.Since(start).Milliseconds()),
		}); err != nil {
			return err
		}
	}

	return nil
}

// executeTools runs one round of tool calls in parallel and emits a
// ToolResultEvent per call, preserving request order.
func (d *Driver) executeTools(ctx context.Context, uses []llm.ToolUseBlock, yield chatsvc.AgentEmit) ([]llm.ToolResultBlock, error) {
	calls := make([]tools.Call, len(uses))
	for i, use := range uses {
		calls[i] = tools.Call{ID: use.ID, Name: use.Name, Input: use.Input}
	}

	results := d.registry.ExecuteParallel(ctx, calls)

	blocks := make([]llm.ToolResultBlock, 0, len(results))
	for _, res := range results {
		var output, errStr *string
		content := res.Output
		if res.IsError {
			msg := res.Err.Error()
			errStr = &msg
			content = msg
			d.logger.Warn("tool execution failed", "tool", res.Name, "error", res.Err)
		} else {
			out := res.Output
			output = &out
		}
		if err := yield(agentmodels.ToolResultEvent{
			ToolCallID: res.ID,
			Output:     output,
			Error:      errStr,
		}); err != nil {
			return nil, err
		}
		blocks = append(blocks, llm.ToolResultBlock{
			ToolUseID: res.ID,
			Content:   content,
			IsError:   res.IsError,
		})
	}
	return blocks, nil
}

// convertHistory maps persisted role/content pairs onto provider messages.
// Unknown roles are skipped rather than rejected.
func convertHistory(history []chatsvc.HistoryMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, h := range history {
		switch h.Role {
		case "user", "assistant":
			msgs = append(msgs, llm.Message{Role: h.Role, Text: h.Content})
		}
	}
	return msgs
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
