package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quietleaf/journal/internal/logger"
)

const (
	// Retryable failure codes
	CodeConnection = "connection"
	CodeTimeout    = "timeout"
	CodeTransport  = "transport"

	// Terminal failure codes
	CodeModelMissing = "model-missing"
	CodeExhausted    = "exhausted"
)

const healthTimeout = 5 * time.Second

type Error struct {
	Code string

	// Model that must be provisioned, set for CodeModelMissing
	Model string

	// How many attempts were made, set for CodeExhausted
	Attempts int

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, attempts: %d, error: %v", e.Code, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Gateway config with sensible defaults
type Config struct {
	// Base URL of the local text generation service
	BaseURL string

	// Model identifier to generate with
	Model string

	// Per attempt timeout
	Timeout time.Duration

	// How many attempts to make and how long to wait between them
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to a locally hosted Ollama server
// Safe for concurrent use: nothing mutable beyond static configuration
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "phi3:mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{},
		logger:     l,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces text for the prompt, prepending the system text when present
// Transient failures are retried up to MaxRetries times: connection failures
// back off linearly (the server is likely restarting), timeouts and transport
// errors wait a flat delay. A missing model fails immediately with
// CodeModelMissing, exhausted retries fail with CodeExhausted carrying the
// attempt count and last cause.
func (c *Client) Generate(ctx context.Context, prompt string, system string, maxTokens int, temperature float64) (string, error) {
	fullPrompt := prompt
	if system != "" {
		fullPrompt = system + "\n\n" + prompt
	}

	payload, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  fullPrompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature, NumPredict: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("can't encode generate request. Err: %w", err)
	}

	var lastErr *Error
	attempts := 0
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.attempt(ctx, payload)
		attempts = attempt
		if err == nil {
			return text, nil
		}

		var genErr *Error
		if !errors.As(err, &genErr) {
			return "", err
		}
		if genErr.Code == CodeModelMissing {
			return "", genErr
		}

		lastErr = genErr
		c.logger.Warn("Generate attempt failed",
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"code", genErr.Code,
			"error", genErr.Err,
		)

		if attempt == c.maxRetries {
			break
		}

		// Connection failures back off more aggressively
		delay := c.retryDelay
		if genErr.Code == CodeConnection {
			delay = c.retryDelay * time.Duration(attempt)
		}

		if !sleep(ctx, delay) {
			lastErr = &Error{Code: lastErr.Code, Err: fmt.Errorf("%w (%w)", lastErr.Err, ctx.Err())}
			break
		}
	}

	return "", &Error{
		Code:     CodeExhausted,
		Model:    c.model,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// sleep waits for the delay, false means the context was cancelled first
func sleep(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (c *Client) attempt(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", newError(CodeTransport, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return "", newError(CodeTimeout, fmt.Errorf("request timed out after %s: %w", c.timeout, err))
		}
		return "", newError(CodeConnection, fmt.Errorf("cannot connect to %s: %w", c.baseURL, err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		var out generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", newError(CodeTransport, fmt.Errorf("failed to decode response: %w", err))
		}
		return strings.TrimSpace(out.Response), nil

	case http.StatusNotFound:
		return "", &Error{
			Code:  CodeModelMissing,
			Model: c.model,
			Err:   fmt.Errorf("model %q not found. Run: ollama pull %s", c.model, c.model),
		}

	default:
		return "", newError(CodeTransport, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}
}

// CheckHealth probes the status endpoint, any failure is just "not reachable"
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() // nolint:errcheck

	return resp.StatusCode == http.StatusOK
}
