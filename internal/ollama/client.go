// Package ollama is a client for an Ollama-compatible inference service.
//
// It covers the two endpoints minne needs: embedding generation
// (POST /api/embeddings) and chat completions (POST /api/chat), both
// streaming and non-streaming. Embedding calls are wrapped in an explicit
// retry policy; chat streams are exposed as a lazy sequence that stops the
// upstream request as soon as the consumer stops iterating.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/halvard/minne/internal/log"
)

// Message is one entry in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatFragment is one incremental piece of a streamed chat completion.
type ChatFragment struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Client talks to an Ollama-compatible HTTP API.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the embedding retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimit applies a client-side cap, in requests per second, on calls
// to the inference service. Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client for the service at baseURL
// (e.g. http://localhost:11434).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embeddings generates an embedding vector for prompt using model.
//
// Transport and server errors are retried per the configured policy; a
// well-formed response with an empty embedding is a permanent failure and is
// not retried. The returned error wraps the last failure with the attempt
// count when all attempts are exhausted.
func (c *Client) Embeddings(ctx context.Context, model, prompt string) ([]float32, error) {
	var vec []float32

	err := retryWithBackoff(ctx, c.retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Permanent(fmt.Errorf("rate limit wait: %w", err))
			}
		}

		v, err := c.embedOnce(ctx, model, prompt)
		if err != nil {
			c.logger.Debug("embedding attempt failed", "model", model, "error", err)
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings %q: %w", model, err)
	}
	return vec, nil
}

func (c *Client) embedOnce(ctx context.Context, model, prompt string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: model, Prompt: prompt})
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal request: %w", err))
	}

	resp, err := c.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError(resp)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, Permanent(fmt.Errorf("decode embedding response: %w", err))
	}
	if len(parsed.Embedding) == 0 {
		return nil, Permanent(fmt.Errorf("empty embedding returned"))
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Permanent(fmt.Errorf("non-finite value at component %d", i))
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Chat performs a non-streaming chat completion and returns the final
// assistant message.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (Message, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Message{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return Message{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Message{}, httpStatusError(resp)
	}

	var fragment ChatFragment
	if err := json.NewDecoder(resp.Body).Decode(&fragment); err != nil {
		return Message{}, fmt.Errorf("decode chat response: %w", err)
	}
	return fragment.Message, nil
}

// ChatStream issues a streaming chat completion and returns the fragment
// sequence. The sequence yields each NDJSON fragment as it arrives and ends
// after the fragment marked done (or on error, yielding the error once).
//
// Breaking out of the iteration closes the response body, which aborts the
// HTTP request so the inference service stops generating.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message) iter.Seq2[ChatFragment, error] {
	return func(yield func(ChatFragment, error) bool) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				yield(ChatFragment{}, fmt.Errorf("rate limit wait: %w", err))
				return
			}
		}

		body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
		if err != nil {
			yield(ChatFragment{}, fmt.Errorf("marshal request: %w", err))
			return
		}

		resp, err := c.post(ctx, "/api/chat", body)
		if err != nil {
			yield(ChatFragment{}, err)
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			yield(ChatFragment{}, httpStatusError(resp))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var fragment ChatFragment
			if err := json.Unmarshal(line, &fragment); err != nil {
				yield(ChatFragment{}, fmt.Errorf("decode stream fragment: %w", err))
				return
			}

			if !yield(fragment, nil) {
				return
			}
			if fragment.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			// Suppress the read error when the caller canceled; the
			// context error is the meaningful one.
			if ctx.Err() != nil {
				yield(ChatFragment{}, ctx.Err())
				return
			}
			yield(ChatFragment{}, fmt.Errorf("read stream: %w", err))
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, Permanent(fmt.Errorf("build url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// httpStatusError drains the body into the error message. Client errors
// (4xx) are permanent; server errors are left retryable.
func httpStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
