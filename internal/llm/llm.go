package llm

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrUpstreamStatus is returned when the provider answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("llm upstream returned an error status")
	// ErrMissingCredentials is returned when no API key or model is configured.
	ErrMissingCredentials = errors.New("llm api key and model are required")
)

// ChatRequest is a single system+user exchange.
type ChatRequest struct {
	APIKey string
	Model  string
	System string
	User   string
}

// Response is an open provider response. Body is either an SSE stream or a
// complete JSON object; ContentType tells which. Callers must close Body.
type Response struct {
	Body        io.ReadCloser
	ContentType string
	Status      int
}

// Client abstracts chat-completion providers.
type Client interface {
	OpenStream(ctx context.Context, req ChatRequest) (*Response, error)
}

// Completer returns a whole completion in one call.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}
