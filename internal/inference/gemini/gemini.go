// Package gemini is the Google Gemini inference provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/crimson-sun/sluice/internal/inference"
)

func init() {
	inference.Register("gemini", func(cfg inference.Config) (inference.Client, error) {
		return New(context.Background(), cfg)
	})
}

// Client sends payloads to a Gemini model as a single text prompt.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// New creates a Gemini client. cfg.APIKey is required; cfg.Endpoint overrides
// the default API host.
func New(ctx context.Context, cfg inference.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	name := cfg.Model
	if name == "" {
		name = inference.DefaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client, model: client.GenerativeModel(name), name: name}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.name }

// Infer renders the payload as a prompt and returns the model's text.
func (c *Client) Infer(ctx context.Context, p inference.Payload) (string, error) {
	prompt, err := p.Prompt()
	if err != nil {
		return "", err
	}
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", inference.ErrEmptyResponse
	}
	return text, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", inference.ErrRateLimited, err)
	}
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %w", inference.ErrRateLimited, err)
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %w", inference.ErrEmptyResponse, err)
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
