package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Default client configuration
const (
	DefaultHost       = "http://localhost:11434"
	DefaultModel      = "gpt-oss:20b"
	DefaultEmbedModel = "nomic-embed-text"
	DefaultKeepAlive  = "10m"
	DefaultTimeout    = 120 * time.Second

	// maxStreamLine bounds one NDJSON record; the done record carries the
	// full context array
	maxStreamLine = 1 << 20
)

// Common errors
var (
	ErrEmptyText     = errors.New("text cannot be empty")
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrNoMessages    = errors.New("chat requires at least one message")
	ErrRequestFailed = errors.New("model server request failed")

	// ErrRateLimited wraps ErrRequestFailed: callers can match either.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrRequestFailed)
)

// Config holds client configuration. Zero values select the package defaults.
type Config struct {
	Host           string
	Model          string // generation and chat model
	EmbedModel     string
	KeepAlive      string
	CallsPerMinute int           // client-side rate limit; 0 = unlimited
	Timeout        time.Duration // applied to non-streaming calls only
	DefaultOptions map[string]any
}

// Client talks to an Ollama server over HTTP
type Client struct {
	host       string
	model      string
	embedModel string
	keepAlive  string
	options    map[string]any
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	cache      VectorCache
}

// New creates a client for the given server. cache may be nil to disable
// persistent embedding caching.
func New(cfg Config, cache VectorCache) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.CallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.CallsPerMinute)/60.0), 1)
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		keepAlive:  cfg.KeepAlive,
		options:    cfg.DefaultOptions,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    limiter,
		retry:      DefaultRetryConfig(),
		cache:      cache,
	}
}

// Host returns the server base URL
func (c *Client) Host() string {
	return c.host
}

// Model returns the default generation model
func (c *Client) Model() string {
	return c.model
}

// EmbedModel returns the embedding model
func (c *Client) EmbedModel() string {
	return c.embedModel
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// wait blocks until the rate limiter admits one call
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// mergeOptions overlays per-call options onto the client defaults
func (c *Client) mergeOptions(opts map[string]any) map[string]any {
	if len(c.options) == 0 {
		return opts
	}
	merged := make(map[string]any, len(c.options)+len(opts))
	for k, v := range c.options {
		merged[k] = v
	}
	for k, v := range opts {
		merged[k] = v
	}
	return merged
}

// statusError reports a non-2xx response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// retryable reports whether an attempt is worth repeating
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// post sends one JSON request and decodes the JSON response, retrying
// transient failures with backoff
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = retryWithBackoff(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.doPost(ctx, path, body, out)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, se.body)
		}
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// postStream sends one JSON request and invokes fn for each newline-delimited
// JSON record until fn reports done. Streaming calls are not retried.
func (c *Client) postStream(ctx context.Context, path string, payload any, fn func(line []byte) (bool, error)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
		return fmt.Errorf("%w: %v", ErrRequestFailed, se)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		done, err := fn(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("%w: stream ended without done record", ErrRequestFailed)
}
