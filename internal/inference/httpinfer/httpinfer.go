// Package httpinfer is a generic HTTP inference provider. It POSTs the
// payload as JSON to a single endpoint and reads the text out of the reply.
package httpinfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crimson-sun/sluice/internal/httpclient"
	"github.com/crimson-sun/sluice/internal/inference"
)

func init() {
	inference.Register("http", func(cfg inference.Config) (inference.Client, error) {
		return New(cfg)
	})
}

type request struct {
	inference.Payload
	Model string `json:"model,omitempty"`
}

// Client posts payloads to an HTTP endpoint.
type Client struct {
	api   *httpclient.Client
	model string
}

// New creates a client for cfg.Endpoint. cfg.APIKey, when set, is sent as a
// bearer token.
func New(cfg inference.Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("httpinfer: endpoint is required")
	}
	opts := []httpclient.Option{
		httpclient.WithMaxRetries(1),
		httpclient.WithBaseDelay(500 * time.Millisecond),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}
	return &Client{
		api:   httpclient.New(strings.TrimRight(cfg.Endpoint, "/"), cfg.APIKey, opts...),
		model: cfg.Model,
	}, nil
}

// Infer sends the payload and returns the response text.
func (c *Client) Infer(ctx context.Context, p inference.Payload) (string, error) {
	body, err := json.Marshal(request{Payload: p, Model: c.model})
	if err != nil {
		return "", fmt.Errorf("httpinfer: encode payload: %w", err)
	}
	resp, err := c.api.Do(ctx, http.MethodPost, "", nil, body)
	if err != nil {
		var apiErr *httpclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %w", inference.ErrRateLimited, err)
		}
		return "", err
	}
	text := parseText(resp)
	if text == "" {
		return "", inference.ErrEmptyResponse
	}
	return text, nil
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// parseText accepts {"text": "..."}, a bare JSON string, or plain text.
func parseText(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			return strings.TrimSpace(obj.Text)
		}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(trimmed)
}
