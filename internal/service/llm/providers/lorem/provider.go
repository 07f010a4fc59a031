// Package lorem is a mock provider that streams lorem ipsum text. It works
// without API keys and is used in development and tests.
package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	domainllm "parley/internal/domain/services/llm"
)

// Provider implements llm.ChatModel with generated filler text. Models
// containing "tool" request one tool round before answering, so the full
// agent loop can run without credentials.
type Provider struct {
	generator *loremgen.Lorem

	// wordBudget caps generated words per call.
	wordBudget int
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{
		generator:  loremgen.New(),
		wordBudget: 60,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-test"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// getStreamDelay returns the delay between words based on the model name.
// - lorem-slow: 2 words/second
// - lorem-fast: 30 words/second
// - lorem-test: no delay, for tests
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	if strings.Contains(model, "test") {
		return 0
	}
	return 100 * time.Millisecond
}

// StreamChat streams generated words one delta at a time, then reports
// estimated usage in the final metadata event.
func (p *Provider) StreamChat(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	eventChan := make(chan domainllm.StreamEvent, 10)

	if wantsToolRound(req) {
		go p.streamToolRound(eventChan, req)
		return eventChan, nil
	}

	go func() {
		defer close(eventChan)

		text := p.generateTextWords(p.wordBudget)
		words := strings.Fields(text)
		delay := getStreamDelay(req.Model)

		sent := 0
		for _, word := range words {
			select {
			case <-ctx.Done():
				eventChan <- domainllm.StreamEvent{Error: ctx.Err()}
				return
			default:
			}

			eventChan <- domainllm.StreamEvent{
				Delta: &domainllm.TextDelta{
					Source:  domainllm.DeltaSourceAssistant,
					Content: word + " ",
				},
			}
			sent++

			if delay > 0 {
				time.Sleep(delay)
			}
		}

		eventChan <- domainllm.StreamEvent{
			Metadata: &domainllm.StreamMetadata{
				Model:        req.Model,
				InputTokens:  p.estimateTokens(req.Messages),
				OutputTokens: sent,
				StopReason:   domainllm.StopReasonEndTurn,
			},
		}
	}()

	return eventChan, nil
}

// wantsToolRound reports whether this call should request a tool. Models
// like "lorem-tools" do so exactly once per turn: after the history already
// carries a tool message, the follow-up call answers with text.
func wantsToolRound(req *domainllm.GenerateRequest) bool {
	if !strings.Contains(req.Model, "tool") || len(req.Tools) == 0 {
		return false
	}
	for _, msg := range req.Messages {
		if msg.Role == "tool" {
			return false
		}
	}
	return true
}

// streamToolRound emits a single tool_use for the first offered tool.
func (p *Provider) streamToolRound(eventChan chan<- domainllm.StreamEvent, req *domainllm.GenerateRequest) {
	defer close(eventChan)

	tool := req.Tools[0]
	eventChan <- domainllm.StreamEvent{
		ToolUse: &domainllm.ToolUseBlock{
			ID:    fmt.Sprintf("toolu_lorem_%d", time.Now().UnixNano()),
			Name:  tool.Name,
			Input: map[string]interface{}{},
		},
	}
	eventChan <- domainllm.StreamEvent{
		Metadata: &domainllm.StreamMetadata{
			Model:        req.Model,
			InputTokens:  p.estimateTokens(req.Messages),
			OutputTokens: 1,
			StopReason:   domainllm.StopReasonToolUse,
		},
	}
}

// generateTextWords generates lorem ipsum text with approximately targetWords
// words, with a paragraph break every ~50 words.
func (p *Provider) generateTextWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")

		wordCount += len(strings.Fields(sentence))

		if wordCount%50 == 0 {
			sb.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(sb.String())
}

// estimateTokens estimates the token count for a list of messages.
// Uses word count as a rough approximation.
func (p *Provider) estimateTokens(messages []domainllm.Message) int {
	totalWords := 0
	for _, msg := range messages {
		totalWords += len(strings.Fields(msg.Text))
	}
	return totalWords
}
