// Package agent defines the event model produced while driving one agent
// turn. The set of variants is closed: consumers dispatch with a type switch
// and treat an unknown variant as a programming error.
package agent

import "time"

// Event is the sealed union of events an agent turn can yield.
// Within one turn the sequence is: zero or more ToolCallEvent/ToolResultEvent
// pairs interleaved with TextDeltaEvents, exactly one MessageCompleteEvent,
// optionally one MessageMetadataEvent. RetryEvents occur only between failed
// attempts and never after a successful MessageCompleteEvent.
type Event interface {
	agentEvent()
}

// ToolCallEvent is emitted once per distinct tool invocation the model
// requested. Repeated reports of the same ToolCallID are deduplicated by the
// driver and never reach consumers twice within one attempt.
type ToolCallEvent struct {
	ToolCallID string
	ToolName   string
	Input      map[string]interface{}
}

// ToolResultEvent is emitted once the tool executed. Exactly one of
// Output/Error is set.
type ToolResultEvent struct {
	ToolCallID string
	Output     *string
	Error      *string
}

// TextDeltaEvent is an incremental fragment of assistant text.
type TextDeltaEvent struct {
	Delta string
}

// MessageCompleteEvent carries the full assembled assistant text. It is
// emitted exactly once, last among content events.
type MessageCompleteEvent struct {
	Content string
}

// MessageMetadataEvent carries usage accounting. Emitted at most once per
// turn, after MessageCompleteEvent. Absence is valid - some providers report
// no usage data.
type MessageMetadataEvent struct {
	InputTokens    int
	OutputTokens   int
	Model          string
	ResponseTimeMS int
}

// RetryEvent is emitted each time a transient failure triggers a backoff
// sleep before the whole turn is re-attempted.
type RetryEvent struct {
	Attempt     int
	MaxAttempts int
	ErrorType   string
	Delay       time.Duration
}

func (ToolCallEvent) agentEvent()        {}
func (ToolResultEvent) agentEvent()      {}
func (TextDeltaEvent) agentEvent()       {}
func (MessageCompleteEvent) agentEvent() {}
func (MessageMetadataEvent) agentEvent() {}
func (RetryEvent) agentEvent()           {}
