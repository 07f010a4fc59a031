package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"parley/internal/domain/services/llm"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	base := time.Second
	hint := 7 * time.Second

	tests := []struct {
		name          string
		err           error
		wantRetryable bool
		wantErrorType string
		wantDelay     time.Duration
	}{
		{
			name:          "rate limit uses backoff",
			err:           &llm.RateLimitError{Message: "slow down"},
			wantRetryable: true,
			wantErrorType: "rate_limit",
			wantDelay:     time.Second,
		},
		{
			name:          "rate limit hint overrides backoff",
			err:           &llm.RateLimitError{Message: "slow down", RetryAfter: &hint},
			wantRetryable: true,
			wantErrorType: "rate_limit",
			wantDelay:     7 * time.Second,
		},
		{
			name:          "connection error retries",
			err:           &llm.ConnectionError{Message: "refused"},
			wantRetryable: true,
			wantErrorType: "connection",
			wantDelay:     time.Second,
		},
		{
			name:          "500 retries",
			err:           &llm.StatusError{Code: 500, Message: "internal"},
			wantRetryable: true,
			wantErrorType: "server_error",
			wantDelay:     time.Second,
		},
		{
			name:          "400 with context length marker is fatal",
			err:           &llm.StatusError{Code: 400, Message: "prompt is too long: 210000 tokens"},
			wantRetryable: false,
			wantErrorType: "context_length",
		},
		{
			name:          "plain 400 is fatal",
			err:           &llm.StatusError{Code: 400, Message: "bad request"},
			wantRetryable: false,
			wantErrorType: "stream_error",
		},
		{
			name:          "401 is fatal",
			err:           &llm.StatusError{Code: 401, Message: "bad key"},
			wantRetryable: false,
			wantErrorType: "stream_error",
		},
		{
			name:          "stream error retries",
			err:           &llm.StreamError{Message: "conn reset"},
			wantRetryable: true,
			wantErrorType: "stream_error",
			wantDelay:     time.Second,
		},
		{
			name:          "unexpected error retries",
			err:           errors.New("who knows"),
			wantRetryable: true,
			wantErrorType: "unexpected",
			wantDelay:     time.Second,
		},
		{
			name:          "context canceled is fatal",
			err:           context.Canceled,
			wantRetryable: false,
			wantErrorType: "cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := classify(tt.err, base, 1)
			if dec.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", dec.Retryable, tt.wantRetryable)
			}
			if dec.ErrorType != tt.wantErrorType {
				t.Errorf("ErrorType = %q, want %q", dec.ErrorType, tt.wantErrorType)
			}
			if tt.wantRetryable && dec.Delay != tt.wantDelay {
				t.Errorf("Delay = %v, want %v", dec.Delay, tt.wantDelay)
			}
			if dec.Terminal == nil {
				t.Error("Terminal is nil")
			}
		})
	}
}

func TestClassifyContextLengthConversion(t *testing.T) {
	dec := classify(&llm.StatusError{Code: 400, Message: "context length exceeded"}, time.Second, 1)

	var ctxErr *llm.ContextLengthError
	if !errors.As(dec.Terminal, &ctxErr) {
		t.Fatalf("terminal error is %T, want *llm.ContextLengthError", dec.Terminal)
	}
}

func TestClassifyCancellationPassesThrough(t *testing.T) {
	dec := classify(context.Canceled, time.Second, 1)
	if !errors.Is(dec.Terminal, context.Canceled) {
		t.Errorf("terminal = %v, want context.Canceled", dec.Terminal)
	}
}
