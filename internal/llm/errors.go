package llm

import (
	"context"
	"errors"
	"fmt"
)

// RetryableError marks a provider failure that may succeed on a later attempt:
// malformed or empty output, rate limiting, transient server errors.
type RetryableError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *RetryableError) Error() string {
	return formatProviderError(e.Provider, e.StatusCode, e.Message, e.Cause)
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// FatalError marks a provider failure that retrying cannot fix, such as
// authentication or quota errors.
type FatalError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FatalError) Error() string {
	return formatProviderError(e.Provider, e.StatusCode, e.Message, e.Cause)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

func formatProviderError(provider string, status int, message string, cause error) string {
	msg := message
	if provider != "" {
		msg = fmt.Sprintf("[%s] %s", provider, msg)
	}
	if status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, status)
	}
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return msg
}

// Malformed builds the retryable error used for unusable provider output.
func Malformed(provider, format string, args ...any) error {
	return &RetryableError{
		Provider: provider,
		Message:  "malformed response: " + fmt.Sprintf(format, args...),
	}
}

// ErrorFromStatusCode maps an HTTP status code returned by a provider to the
// error taxonomy.
func ErrorFromStatusCode(provider string, statusCode int, message string, cause error) error {
	switch statusCode {
	case 400, 401, 403, 404, 413, 422:
		return &FatalError{Provider: provider, StatusCode: statusCode, Message: message, Cause: cause}
	default:
		// 408, 429, 5xx and anything unknown are worth another attempt.
		return &RetryableError{Provider: provider, StatusCode: statusCode, Message: message, Cause: cause}
	}
}

// IsRetryable reports whether err is safe to retry. Unclassified errors are
// retryable; cancellation and fatal provider errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	return true
}

// IsFatal reports whether err is a non-retryable provider error.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
