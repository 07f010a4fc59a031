package agent

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"parley/internal/config"
	agentmodels "parley/internal/domain/models/agent"
	chatsvc "parley/internal/domain/services/chat"
	"parley/internal/domain/services/llm"
	"parley/internal/service/agent/tools"
)

// scriptedProvider plays back one canned event stream per StreamChat call.
// Calls beyond the script reuse the last stream.
type scriptedProvider struct {
	scripts  [][]llm.StreamEvent
	callErrs []error
	calls    int
	requests []*llm.GenerateRequest
}

func (p *scriptedProvider) StreamChat(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	i := p.calls
	p.calls++
	p.requests = append(p.requests, req)

	if i < len(p.callErrs) && p.callErrs[i] != nil {
		return nil, p.callErrs[i]
	}

	idx := i
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	script := p.scripts[idx]
	ch := make(chan llm.StreamEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string                { return "scripted" }
func (p *scriptedProvider) SupportsModel(m string) bool { return true }

// echoTool returns a fixed answer.
type echoTool struct {
	name   string
	answer string
	err    error
}

func (e *echoTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: e.name, InputSchema: map[string]interface{}{"type": "object"}}
}

func (e *echoTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.answer, nil
}

func testConfig() config.ProviderConfig {
	return config.ProviderConfig{
		MaxRetries:    2,
		RetryDelay:    10 * time.Millisecond,
		MaxTokens:     1024,
		MaxToolRounds: 5,
	}
}

func newTestDriver(t *testing.T, provider llm.ChatModel, registry *tools.Registry, cfg config.ProviderConfig) (*Driver, *[]time.Duration) {
	t.Helper()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	driver, err := NewDriver(provider, registry, "test-model", nil, cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	var slept []time.Duration
	driver.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return driver, &slept
}

func collectEvents(t *testing.T, driver *Driver, history []chatsvc.HistoryMessage) ([]agentmodels.Event, error) {
	t.Helper()
	var events []agentmodels.Event
	err := driver.GenerateResponse(context.Background(), history, func(ev agentmodels.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func userHistory() []chatsvc.HistoryMessage {
	return []chatsvc.HistoryMessage{{Role: "user", Content: "hi"}}
}

func textDelta(s string) llm.StreamEvent {
	return llm.StreamEvent{Delta: &llm.TextDelta{Source: llm.DeltaSourceAssistant, Content: s}}
}

func endTurn(in, out int) llm.StreamEvent {
	return llm.StreamEvent{Metadata: &llm.StreamMetadata{
		Model:        "test-model-v1",
		InputTokens:  in,
		OutputTokens: out,
		StopReason:   llm.StopReasonEndTurn,
	}}
}

func TestDriverStreamsTextThenCompleteThenMetadata(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{{
		textDelta("Hello "),
		textDelta("world"),
		endTurn(10, 2),
	}}}
	driver, _ := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %#v", len(events), events)
	}
	if d, ok := events[0].(agentmodels.TextDeltaEvent); !ok || d.Delta != "Hello " {
		t.Errorf("event 0 = %#v, want TextDelta 'Hello '", events[0])
	}
	if d, ok := events[1].(agentmodels.TextDeltaEvent); !ok || d.Delta != "world" {
		t.Errorf("event 1 = %#v, want TextDelta 'world'", events[1])
	}
	complete, ok := events[2].(agentmodels.MessageCompleteEvent)
	if !ok || complete.Content != "Hello world" {
		t.Errorf("event 2 = %#v, want MessageComplete 'Hello world'", events[2])
	}
	meta, ok := events[3].(agentmodels.MessageMetadataEvent)
	if !ok {
		t.Fatalf("event 3 = %#v, want MessageMetadata", events[3])
	}
	if meta.InputTokens != 10 || meta.OutputTokens != 2 || meta.Model != "test-model-v1" {
		t.Errorf("metadata = %#v", meta)
	}
}

func TestDriverNoUsageMeansNoMetadataEvent(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{{
		textDelta("hi"),
		{Metadata: &llm.StreamMetadata{StopReason: llm.StopReasonEndTurn}},
	}}}
	driver, _ := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	for _, ev := range events {
		if _, ok := ev.(agentmodels.MessageMetadataEvent); ok {
			t.Errorf("unexpected MessageMetadataEvent: %#v", ev)
		}
	}
	if _, ok := events[len(events)-1].(agentmodels.MessageCompleteEvent); !ok {
		t.Errorf("last event = %#v, want MessageComplete", events[len(events)-1])
	}
}

func TestDriverToolLoop(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", answer: "42"})

	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{
		{
			textDelta("Let me check."),
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_1", Name: "echo", Input: map[string]interface{}{"q": "x"}}},
			{Metadata: &llm.StreamMetadata{Model: "test-model-v1", InputTokens: 5, OutputTokens: 3, StopReason: llm.StopReasonToolUse}},
		},
		{
			textDelta("The answer is 42."),
			endTurn(9, 6),
		},
	}}
	driver, _ := newTestDriver(t, provider, registry, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	var (
		toolCalls   []agentmodels.ToolCallEvent
		toolResults []agentmodels.ToolResultEvent
		complete    *agentmodels.MessageCompleteEvent
	)
	for _, ev := range events {
		switch e := ev.(type) {
		case agentmodels.ToolCallEvent:
			toolCalls = append(toolCalls, e)
		case agentmodels.ToolResultEvent:
			toolResults = append(toolResults, e)
		case agentmodels.MessageCompleteEvent:
			c := e
			complete = &c
		}
	}

	if len(toolCalls) != 1 || toolCalls[0].ToolCallID != "toolu_1" || toolCalls[0].ToolName != "echo" {
		t.Fatalf("tool calls = %#v", toolCalls)
	}
	if len(toolResults) != 1 || toolResults[0].Output == nil || *toolResults[0].Output != "42" {
		t.Fatalf("tool results = %#v", toolResults)
	}
	if complete == nil {
		t.Fatal("no MessageCompleteEvent")
	}
	// Text from the round after tool execution is separated by a newline.
	if complete.Content != "Let me check.\nThe answer is 42." {
		t.Errorf("content = %q", complete.Content)
	}

	// The follow-up request must carry the assistant tool_use message and
	// the tool results.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(provider.requests))
	}
	second := provider.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second))
	}
	if second[1].Role != "assistant" || len(second[1].ToolUses) != 1 {
		t.Errorf("second request message 1 = %#v", second[1])
	}
	if second[2].Role != "tool" || len(second[2].ToolResults) != 1 {
		t.Errorf("second request message 2 = %#v", second[2])
	}

	// Token usage accumulates across rounds.
	last := events[len(events)-1]
	meta, ok := last.(agentmodels.MessageMetadataEvent)
	if !ok {
		t.Fatalf("last event = %#v, want MessageMetadata", last)
	}
	if meta.InputTokens != 14 || meta.OutputTokens != 9 {
		t.Errorf("accumulated usage = %d/%d, want 14/9", meta.InputTokens, meta.OutputTokens)
	}
}

func TestDriverFailedToolFeedsErrorBack(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", err: errors.New("boom")})

	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{
		{
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_1", Name: "echo", Input: map[string]interface{}{}}},
			{Metadata: &llm.StreamMetadata{Model: "m", InputTokens: 1, OutputTokens: 1, StopReason: llm.StopReasonToolUse}},
		},
		{
			textDelta("Sorry, that failed."),
			endTurn(2, 2),
		},
	}}
	driver, _ := newTestDriver(t, provider, registry, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	var result *agentmodels.ToolResultEvent
	for _, ev := range events {
		if e, ok := ev.(agentmodels.ToolResultEvent); ok {
			r := e
			result = &r
		}
	}
	if result == nil {
		t.Fatal("no ToolResultEvent")
	}
	if result.Error == nil || *result.Error != "boom" {
		t.Errorf("result error = %v, want 'boom'", result.Error)
	}
	if result.Output != nil {
		t.Errorf("result output = %v, want nil", result.Output)
	}

	// The error is reported back to the model as an is_error tool result.
	second := provider.requests[1].Messages
	toolMsg := second[len(second)-1]
	if len(toolMsg.ToolResults) != 1 || !toolMsg.ToolResults[0].IsError {
		t.Errorf("tool result block = %#v, want IsError", toolMsg.ToolResults)
	}
}

func TestDriverDeduplicatesRepeatedToolUse(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", answer: "ok"})

	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{
		{
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_1", Name: "echo", Input: map[string]interface{}{}}},
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_1", Name: "echo", Input: map[string]interface{}{}}},
			{Metadata: &llm.StreamMetadata{Model: "m", InputTokens: 1, OutputTokens: 1, StopReason: llm.StopReasonToolUse}},
		},
		{
			textDelta("done"),
			endTurn(1, 1),
		},
	}}
	driver, _ := newTestDriver(t, provider, registry, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	count := 0
	for _, ev := range events {
		if _, ok := ev.(agentmodels.ToolCallEvent); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d ToolCallEvents, want 1", count)
	}
}

func TestDriverFiltersToolResultDeltas(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{{
		{Delta: &llm.TextDelta{Source: llm.DeltaSourceToolResult, Content: "secret tool chatter"}},
		textDelta("visible"),
		endTurn(1, 1),
	}}}
	driver, _ := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	for _, ev := range events {
		if d, ok := ev.(agentmodels.TextDeltaEvent); ok && d.Delta != "visible" {
			t.Errorf("unexpected delta %q", d.Delta)
		}
		if c, ok := ev.(agentmodels.MessageCompleteEvent); ok && c.Content != "visible" {
			t.Errorf("content = %q, want 'visible'", c.Content)
		}
	}
}

func TestDriverRetryExhaustion(t *testing.T) {
	connErr := &llm.ConnectionError{Message: "refused"}
	provider := &scriptedProvider{
		callErrs: []error{connErr, connErr, connErr},
		scripts:  [][]llm.StreamEvent{{}},
	}
	driver, slept := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())

	var got *llm.ConnectionError
	if !errors.As(err, &got) {
		t.Fatalf("error = %v, want ConnectionError", err)
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3 (MaxRetries+1)", provider.calls)
	}

	var retries []agentmodels.RetryEvent
	for _, ev := range events {
		if r, ok := ev.(agentmodels.RetryEvent); ok {
			retries = append(retries, r)
		}
	}
	if len(retries) != 2 {
		t.Fatalf("got %d RetryEvents, want 2", len(retries))
	}
	if retries[0].Attempt != 1 || retries[0].MaxAttempts != 3 || retries[0].ErrorType != "connection" {
		t.Errorf("retry 0 = %#v", retries[0])
	}
	if retries[1].Attempt != 2 {
		t.Errorf("retry 1 attempt = %d, want 2", retries[1].Attempt)
	}

	// Exponential backoff: 10ms then 20ms.
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("sleeps = %v, want %v", *slept, want)
	}
}

func TestDriverRecoversOnRetry(t *testing.T) {
	provider := &scriptedProvider{
		callErrs: []error{&llm.StatusError{Code: 503, Message: "overloaded"}},
		scripts: [][]llm.StreamEvent{
			{},
			{textDelta("recovered"), endTurn(1, 1)},
		},
	}
	driver, _ := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	var complete *agentmodels.MessageCompleteEvent
	retries := 0
	for _, ev := range events {
		switch e := ev.(type) {
		case agentmodels.RetryEvent:
			retries++
		case agentmodels.MessageCompleteEvent:
			c := e
			complete = &c
		}
	}
	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}
	if complete == nil || complete.Content != "recovered" {
		t.Errorf("complete = %#v", complete)
	}
}

func TestDriverFatalErrorSkipsRetry(t *testing.T) {
	provider := &scriptedProvider{
		callErrs: []error{&llm.StatusError{Code: 401, Message: "bad key"}},
		scripts:  [][]llm.StreamEvent{{}},
	}
	driver, slept := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())

	var streamErr *llm.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error = %v, want StreamError", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if len(events) != 0 {
		t.Errorf("events = %#v, want none", events)
	}
	if len(*slept) != 0 {
		t.Errorf("sleeps = %v, want none", *slept)
	}
}

func TestDriverMidStreamErrorRetries(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{
		{
			textDelta("partial "),
			{Error: &llm.RateLimitError{Message: "slow down"}},
		},
		{
			textDelta("complete"),
			endTurn(1, 1),
		},
	}}
	driver, _ := newTestDriver(t, provider, nil, testConfig())

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	var complete *agentmodels.MessageCompleteEvent
	for _, ev := range events {
		if c, ok := ev.(agentmodels.MessageCompleteEvent); ok {
			cc := c
			complete = &cc
		}
	}
	// The failed attempt's partial text does not leak into the final
	// content - each attempt assembles from scratch.
	if complete == nil || complete.Content != "complete" {
		t.Errorf("complete = %#v, want content 'complete'", complete)
	}
}

func TestDriverEmitErrorStopsTurn(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{{
		textDelta("a"),
		textDelta("b"),
		endTurn(1, 1),
	}}}
	driver, slept := newTestDriver(t, provider, nil, testConfig())

	stop := errors.New("consumer gone")
	err := driver.GenerateResponse(context.Background(), userHistory(), func(ev agentmodels.Event) error {
		return stop
	})

	if !errors.Is(err, stop) {
		t.Fatalf("error = %v, want the emit error unchanged", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on consumer stop)", provider.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("sleeps = %v, want none", *slept)
	}
}

func TestDriverToolRoundCap(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", answer: "ok"})

	// Provider always asks for another tool round.
	provider := &scriptedProvider{scripts: [][]llm.StreamEvent{
		{
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_1", Name: "echo", Input: map[string]interface{}{}}},
			{Metadata: &llm.StreamMetadata{Model: "m", InputTokens: 1, OutputTokens: 1, StopReason: llm.StopReasonToolUse}},
		},
		{
			{ToolUse: &llm.ToolUseBlock{ID: "toolu_2", Name: "echo", Input: map[string]interface{}{}}},
			{Metadata: &llm.StreamMetadata{Model: "m", InputTokens: 1, OutputTokens: 1, StopReason: llm.StopReasonToolUse}},
		},
	}}

	cfg := testConfig()
	cfg.MaxToolRounds = 2
	driver, _ := newTestDriver(t, provider, registry, cfg)

	events, err := collectEvents(t, driver, userHistory())
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}

	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (round cap)", provider.calls)
	}
	if _, ok := events[len(events)-2].(agentmodels.MessageCompleteEvent); !ok {
		// events end with complete + metadata
		t.Errorf("expected MessageCompleteEvent near end, events = %#v", events)
	}
}

func TestNewDriverRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokens = 0
	_, err := NewDriver(&scriptedProvider{}, tools.NewRegistry(), "m", nil, cfg, slog.Default())
	if err == nil {
		t.Fatal("expected config validation error")
	}
}
