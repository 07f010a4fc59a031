package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parley/internal/domain/services/llm"
)

// Error type labels surfaced in retry events.
const (
	errTypeRateLimit     = "rate_limit"
	errTypeConnection    = "connection"
	errTypeServer        = "server_error"
	errTypeContextLength = "context_length"
	errTypeStream        = "stream_error"
	errTypeCancelled     = "cancelled"
	errTypeUnexpected    = "unexpected"
)

// retryDecision is the verdict of classify for a single failed attempt.
// When Retryable is false, or when attempts are exhausted, Terminal is the
// error the caller propagates.
type retryDecision struct {
	Retryable bool
	Delay     time.Duration
	ErrorType string
	Terminal  error
}

// classify maps a provider error to a retry decision. The delay is
// exponential from baseDelay unless the provider supplied an explicit
// retry-after hint, which always wins.
func classify(err error, baseDelay time.Duration, attempt int) retryDecision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retryDecision{ErrorType: errTypeCancelled, Terminal: err}
	}

	var rateErr *llm.RateLimitError
	if errors.As(err, &rateErr) {
		delay := backoffDelay(baseDelay, attempt)
		if rateErr.RetryAfter != nil && *rateErr.RetryAfter > 0 {
			delay = *rateErr.RetryAfter
		}
		return retryDecision{
			Retryable: true,
			Delay:     delay,
			ErrorType: errTypeRateLimit,
			Terminal:  err,
		}
	}

	var connErr *llm.ConnectionError
	if errors.As(err, &connErr) {
		return retryDecision{
			Retryable: true,
			Delay:     backoffDelay(baseDelay, attempt),
			ErrorType: errTypeConnection,
			Terminal:  err,
		}
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 400 && isContextLengthMessage(statusErr.Message):
			return retryDecision{
				ErrorType: errTypeContextLength,
				Terminal:  &llm.ContextLengthError{Message: statusErr.Message},
			}
		case statusErr.Code >= 500:
			return retryDecision{
				Retryable: true,
				Delay:     backoffDelay(baseDelay, attempt),
				ErrorType: errTypeServer,
				Terminal: &llm.StreamError{
					Message: fmt.Sprintf("provider returned status %d", statusErr.Code),
					Err:     statusErr,
				},
			}
		default:
			return retryDecision{
				ErrorType: errTypeStream,
				Terminal: &llm.StreamError{
					Message: fmt.Sprintf("provider returned status %d", statusErr.Code),
					Err:     statusErr,
				},
			}
		}
	}

	var ctxLenErr *llm.ContextLengthError
	if errors.As(err, &ctxLenErr) {
		return retryDecision{ErrorType: errTypeContextLength, Terminal: err}
	}

	var streamErr *llm.StreamError
	if errors.As(err, &streamErr) {
		return retryDecision{
			Retryable: true,
			Delay:     backoffDelay(baseDelay, attempt),
			ErrorType: errTypeStream,
			Terminal:  err,
		}
	}

	return retryDecision{
		Retryable: true,
		Delay:     backoffDelay(baseDelay, attempt),
		ErrorType: errTypeUnexpected,
		Terminal:  &llm.StreamError{Message: "unexpected provider error", Err: err},
	}
}

// backoffDelay doubles the base delay for each attempt after the first.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt-1))
}

func isContextLengthMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"context length",
		"context_length",
		"prompt is too long",
		"too many tokens",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
