// Package delivery sends JSON payloads to a downstream HTTP service with a
// bounded number of immediate retries.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/radworker/pkg/logger"
	"github.com/okian/radworker/pkg/metrics"
)

// Defaults.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Recorder receives the outcome of every attempt.
type Recorder interface {
	IncDeliveryAttempt(outcome string)
}

// Response is the first successful reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs retried requests. It is safe for concurrent use.
type Client struct {
	http       *http.Client
	maxRetries int
	logger     logger.Logger
	recorder   Recorder
}

// New creates a client with DefaultMaxRetries attempts.
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		logger:     logger.Get().Named("delivery"),
		recorder:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxRetries returns the attempt ceiling.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Attempt sends payload as JSON to target. A status below 400 ends the loop
// and is returned; a status of 400 or more, or a transport error, is retried
// at once until MaxRetries attempts were made. Headers with empty values
// are not sent.
func (c *Client) Attempt(ctx context.Context, method, target string, payload any, headers map[string]string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}

	var last error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrDeliveryExhausted, attempt, err)
		}

		resp, outcome, err := c.do(ctx, method, target, body, headers)
		c.recorder.IncDeliveryAttempt(outcome)
		if err == nil {
			return resp, nil
		}

		last = err
		c.logger.Warn(ctx, "delivery attempt failed",
			logger.Int("attempt", attempt),
			logger.String("target", target),
			logger.Error(err),
		)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrDeliveryExhausted, c.maxRetries, last)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, headers map[string]string) (*Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, metrics.OutcomeTransport, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, metrics.OutcomeTransport, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug(ctx, "failed to close response body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, metrics.OutcomeStatusError, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	// The status is final; a body that fails to read does not undo delivery.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Debug(ctx, "failed to read response body", logger.Int("status", resp.StatusCode), logger.Error(err))
		data = nil
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, metrics.OutcomeSuccess, nil
}
