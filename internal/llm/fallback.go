package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FallbackClient consults a chain of providers in order and returns the first
// successful response.
type FallbackClient struct {
	clients []Client
}

// NewFallback builds a FallbackClient. With a single client it returns that
// client unchanged.
func NewFallback(clients ...Client) Client {
	filtered := make([]Client, 0, len(clients))
	for _, c := range clients {
		if c != nil {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &FallbackClient{clients: filtered}
}

func (f *FallbackClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(f.clients) == 0 {
		return nil, &FatalError{Provider: f.Provider(), Message: "no providers configured"}
	}

	var lastErr error
	for _, c := range f.clients {
		resp, err := c.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = fmt.Errorf("%s/%s: %w", c.Provider(), c.Model(), err)
	}
	return nil, lastErr
}

func (f *FallbackClient) Provider() string {
	names := make([]string, len(f.clients))
	for i, c := range f.clients {
		names[i] = c.Provider()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *FallbackClient) Model() string {
	if len(f.clients) == 0 {
		return ""
	}
	return f.clients[0].Model()
}
