package llm

import (
	"fmt"
	"time"
)

// Typed provider errors. Adapters translate SDK failures into these; the
// agent driver's retry policy classifies them without ever inspecting
// SDK-specific types.

// RateLimitError indicates the provider rejected the call for rate limiting.
// RetryAfter carries the provider's hint when one was supplied.
type RateLimitError struct {
	Message    string
	RetryAfter *time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, *e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// ConnectionError indicates the provider could not be reached.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StatusError is a provider HTTP error that is not a rate limit. The driver
// classifies it further (context length, server error, fatal client error).
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Message)
}

// ContextLengthError indicates the request exceeded the model's context
// window. Never retried - the same request can only fail again.
type ContextLengthError struct {
	Message string
}

func (e *ContextLengthError) Error() string {
	return fmt.Sprintf("context length exceeded: %s", e.Message)
}

// StreamError is the terminal wrapper for non-retryable stream failures and
// for retryable failures once attempts are exhausted.
type StreamError struct {
	Message string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("stream failed: %s", e.Message)
}

func (e *StreamError) Unwrap() error { return e.Err }
