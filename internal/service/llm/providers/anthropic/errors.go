package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	domainllm "parley/internal/domain/services/llm"
)

// translateError maps SDK and transport failures onto the typed provider
// errors the retry policy understands. Context cancellation passes through
// untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return &domainllm.RateLimitError{
				Message:    fmt.Sprintf("anthropic rate limited: %v", apierr),
				RetryAfter: retryAfterHint(apierr),
			}
		case apierr.StatusCode == 529:
			// Anthropic "overloaded" responses behave like rate limits.
			return &domainllm.RateLimitError{
				Message:    fmt.Sprintf("anthropic overloaded: %v", apierr),
				RetryAfter: retryAfterHint(apierr),
			}
		default:
			return &domainllm.StatusError{
				Code:    apierr.StatusCode,
				Message: apierr.Error(),
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &domainllm.ConnectionError{
			Message: "anthropic connection failed",
			Err:     err,
		}
	}

	return &domainllm.StreamError{
		Message: "anthropic request failed",
		Err:     err,
	}
}

// retryAfterHint extracts the retry-after header, when present, as a duration.
func retryAfterHint(apierr *anthropic.Error) *time.Duration {
	if apierr.Response == nil {
		return nil
	}
	raw := apierr.Response.Header.Get("retry-after")
	if raw == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return nil
	}
	d := time.Duration(seconds * float64(time.Second))
	return &d
}
