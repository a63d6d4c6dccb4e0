package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"resumate/internal/llm"
	"resumate/internal/shared/telemetry"
)

var apiURL = "https://openrouter.ai/api/v1/chat/completions"

const (
	defaultTimeout = 120 * time.Second
	errorBodyLimit = 2 << 10
)

// Client implements llm.Client against an OpenAI-compatible chat completions
// endpoint (OpenRouter by default).
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient constructs a client. An empty url uses the default endpoint.
// timeout bounds the wait for response headers; the stream itself may run
// longer and is bounded by the caller's context.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Transport: transport},
	}
}

func (c *Client) endpoint() string {
	if c.url != "" {
		return c.url
	}
	return apiURL
}

func buildRequest(req llm.ChatRequest, stream bool) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			{Role: goopenai.ChatMessageRoleUser, Content: req.User},
		},
		Stream: stream,
	}
}

func (c *Client) do(ctx context.Context, req llm.ChatRequest, stream bool) (*http.Response, error) {
	if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.Model) == "" {
		return nil, llm.ErrMissingCredentials
	}
	payload, err := json.Marshal(buildRequest(req, stream))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Title", "ResuMate")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("llm request timeout: %w", err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		telemetry.Error("llm.upstream_status", map[string]any{
			"status": resp.StatusCode,
			"model":  req.Model,
			"body":   strings.TrimSpace(string(body)),
		})
		return nil, fmt.Errorf("%w: %d %s", llm.ErrUpstreamStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

// OpenStream issues a streaming request and hands back the open body.
func (c *Client) OpenStream(ctx context.Context, req llm.ChatRequest) (*llm.Response, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &llm.Response{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}, nil
}

// Complete issues a non-streaming request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed goopenai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("llm response parse: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response missing choices")
	}
	telemetry.Info("llm.response", map[string]any{
		"model":             req.Model,
		"prompt_tokens":     parsed.Usage.PromptTokens,
		"completion_tokens": parsed.Usage.CompletionTokens,
	})
	return parsed.Choices[0].Message.Content, nil
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.Completer = (*Client)(nil)
)
