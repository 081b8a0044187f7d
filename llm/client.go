package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/lexcodex/reactchat/framework"
)

// ErrCircuitOpen is returned while the upstream breaker rejects requests.
var ErrCircuitOpen = errors.New("chat API circuit breaker open")

// APIError is a non-2xx response from the chat API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("DeepSeek API error: %d - %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("DeepSeek API error: %d", e.StatusCode)
}

// providerFailure reports whether the error says something about upstream
// health. Client-side mistakes (auth, bad request) do not trip the breaker.
func (e *APIError) providerFailure() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ChatRequest is one streaming completion request.
type ChatRequest struct {
	SystemPrompt string
	Messages     []framework.Message
	Tools        []framework.ToolSchema
	MaxTokens    int
}

// ChatModel opens a streaming completion.
type ChatModel interface {
	StreamChat(ctx context.Context, req ChatRequest) (Stream, error)
}

// Config points the client at an OpenAI compatible endpoint.
type Config struct {
	APIKey string
	URL    string
	Model  string
	// HeaderTimeout bounds the wait for response headers. The body of a
	// stream is bounded only by the caller's context.
	HeaderTimeout time.Duration
}

// Client streams chat completions over server-sent events.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](st)
	}
}

// NewClient builds a streaming client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = framework.DefaultAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = framework.DefaultModel
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 120 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
	}
	c.httpClient = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ResponseHeaderTimeout: cfg.HeaderTimeout,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](c.defaultBreakerSettings())
	}
	return c
}

func (c *Client) defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "chat-" + c.cfg.Model,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.providerFailure()
			}
			return false
		},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// StreamChat sends the request and returns a stream of deltas. The stream
// must be closed by the caller.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (Stream, error) {
	payload := chatPayload{
		Model:     c.cfg.Model,
		Messages:  PrepareMessages(req.SystemPrompt, req.Messages),
		Stream:    true,
		Tools:     req.Tools,
		MaxTokens: req.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Info("sending chat request",
		"model", c.cfg.Model,
		"message_count", len(payload.Messages),
		"has_tools", len(req.Tools) > 0,
	)
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.open(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return newSSEStream(ctx, resp.Body, c.logger), nil
}

func (c *Client) open(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("DeepSeek request error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		c.logger.Error("chat API rejected request", "status", resp.StatusCode, "error", apiErr)
		return nil, apiErr
	}
	return resp, nil
}
