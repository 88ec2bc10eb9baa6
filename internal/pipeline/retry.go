package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnexpectedStatus marks a response outside the 2xx range
var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatusError is returned for a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// IsRetryable reports whether an error is an HTTP status failure.
// Transport and decode errors are not retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnexpectedStatus)
}

// RetryOnce runs op and, if it fails with a retryable error, runs it one
// more time straight away. There is no backoff. onRetry may be nil.
func RetryOnce[T any](ctx context.Context, op func(context.Context) (T, error), onRetry func(error)) (T, error) {
	result, err := op(ctx)
	if err == nil || !IsRetryable(err) {
		return result, err
	}

	slog.DebugContext(ctx, "retrying request", "err", err)
	if onRetry != nil {
		onRetry(err)
	}
	return op(ctx)
}
