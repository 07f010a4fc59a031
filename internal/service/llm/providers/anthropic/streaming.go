package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	domainllm "parley/internal/domain/services/llm"
)

// StreamChat starts one streaming model call. Text deltas are forwarded as
// they arrive; tool_use blocks are accumulated from input_json_delta chunks
// and emitted whole once their content block closes.
func (p *Provider) StreamChat(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}

	if req.System != nil {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: *req.System,
			},
		}
	}

	if len(req.Tools) > 0 {
		apiParams.Tools = convertTools(req.Tools)
	}

	// Buffered to prevent blocking
	eventChan := make(chan domainllm.StreamEvent, 10)

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for tool_use inputs and final metadata
		message := anthropic.Message{}

		send := func(ev domainllm.StreamEvent) bool {
			select {
			case <-ctx.Done():
				eventChan <- domainllm.StreamEvent{Error: ctx.Err()}
				return false
			case eventChan <- ev:
				return true
			}
		}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- domainllm.StreamEvent{
					Error: &domainllm.StreamError{
						Message: "failed to accumulate anthropic message",
						Err:     err,
					},
				}
				return
			}

			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type != "text_delta" || e.Delta.Text == "" {
					continue
				}
				if !send(domainllm.StreamEvent{
					Delta: &domainllm.TextDelta{
						Source:  domainllm.DeltaSourceAssistant,
						Content: e.Delta.Text,
					},
				}) {
					return
				}

			case anthropic.ContentBlockStopEvent:
				use, err := completedToolUse(&message, int(e.Index))
				if err != nil {
					eventChan <- domainllm.StreamEvent{
						Error: &domainllm.StreamError{
							Message: "failed to decode tool_use input",
							Err:     err,
						},
					}
					return
				}
				if use == nil {
					continue
				}
				if !send(domainllm.StreamEvent{ToolUse: use}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- domainllm.StreamEvent{Error: translateError(err)}
			return
		}

		eventChan <- domainllm.StreamEvent{
			Metadata: &domainllm.StreamMetadata{
				Model:        string(message.Model),
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
				StopReason:   string(message.StopReason),
			},
		}
	}()

	return eventChan, nil
}

// completedToolUse returns the accumulated tool_use block at index, or nil
// when the block at index is not a tool_use.
func completedToolUse(message *anthropic.Message, index int) (*domainllm.ToolUseBlock, error) {
	if index < 0 || index >= len(message.Content) {
		return nil, nil
	}
	block := message.Content[index]
	if block.Type != "tool_use" {
		return nil, nil
	}

	input := make(map[string]interface{})
	if len(block.Input) > 0 {
		if err := json.Unmarshal(block.Input, &input); err != nil {
			return nil, err
		}
	}

	return &domainllm.ToolUseBlock{
		ID:    block.ID,
		Name:  block.Name,
		Input: input,
	}, nil
}
