package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFromStatusCode(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{429, true},
		{500, true},
		{503, true},
		{0, true},
	}
	for _, tc := range cases {
		err := ErrorFromStatusCode("p", tc.status, "msg", nil)
		assert.Equal(t, tc.retryable, IsRetryable(err), "status %d", tc.status)
		assert.Equal(t, !tc.retryable, IsFatal(err), "status %d", tc.status)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", &FatalError{Message: "quota"})))
	assert.True(t, IsRetryable(Malformed("p", "empty output")))
}

func TestErrorMessages(t *testing.T) {
	err := &RetryableError{Provider: "openai", StatusCode: 429, Message: "slow down", Cause: errors.New("x")}
	assert.Equal(t, "[openai] slow down (status=429): x", err.Error())
	assert.Contains(t, Malformed("p", "bad %s", "json").Error(), "malformed response: bad json")
}
