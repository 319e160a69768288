package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/crimson-sun/sluice/internal/inference"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), inference.Config{}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestProviderRegistered(t *testing.T) {
	for _, name := range inference.Providers() {
		if name == "gemini" {
			return
		}
	}
	t.Fatalf("gemini not registered: %v", inference.Providers())
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hi "), genai.Text("Hi\n")}},
		}},
	}
	if got := responseText(resp); got != "Hi Hi" {
		t.Fatalf("expected joined text, got %q", got)
	}

	for _, empty := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
	} {
		if got := responseText(empty); got != "" {
			t.Fatalf("expected empty text, got %q", got)
		}
	}
}

func TestClassify(t *testing.T) {
	quota := &googleapi.Error{Code: 429, Message: "quota exceeded"}
	if err := classify(quota); !errors.Is(err, inference.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if err := classify(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")); !errors.Is(err, inference.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if err := classify(&genai.BlockedError{}); !errors.Is(err, inference.ErrEmptyResponse) {
		t.Fatalf("expected empty response, got %v", err)
	}
	plain := errors.New("dial tcp: refused")
	if err := classify(plain); !errors.Is(err, plain) || errors.Is(err, inference.ErrRateLimited) {
		t.Fatalf("expected wrapped plain error, got %v", err)
	}
}
