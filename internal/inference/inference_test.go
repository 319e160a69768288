package inference

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/sluice/internal/model"
)

func TestPayloadJSON(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)
	p := NewPayload("say hi", []model.Row{{ID: "1", Message: "m", Severity: "info", Source: "api", Timestamp: ts}})
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"instruction":"say hi","row_count":1,"rows":[{"id":"1","message":"m","severity":"info","source":"api","timestamp":"2025-01-01T00:00:01Z"}]}`
	if string(data) != want {
		t.Fatalf("unexpected payload:\n got: %s\nwant: %s", data, want)
	}

	data, _ = json.Marshal(NewPayload("x", nil))
	if !strings.Contains(string(data), `"rows":[]`) {
		t.Fatalf("expected empty rows array, got %s", data)
	}
}

func TestPayloadPrompt(t *testing.T) {
	p := NewPayload(DefaultInstruction, []model.Row{{ID: "7", Message: "disk full"}})
	prompt, err := p.Prompt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(prompt, DefaultInstruction) {
		t.Fatalf("prompt should start with the instruction: %q", prompt)
	}
	if !strings.Contains(prompt, "Here are the 1 entries:\n\n[\n  {\n    \"id\": \"7\"") {
		t.Fatalf("expected indented rows JSON, got %q", prompt)
	}
}

type nopClient struct{}

func (nopClient) Infer(context.Context, Payload) (string, error) { return "ok", nil }
func (nopClient) Close() error                                   { return nil }

func TestRegistry(t *testing.T) {
	Register("nop-test", func(Config) (Client, error) { return nopClient{}, nil })

	c, err := Open(Config{Provider: "nop-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(nopClient); !ok {
		t.Fatalf("unexpected client %T", c)
	}
	if _, err := Open(Config{Provider: "missing"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	found := false
	for _, name := range Providers() {
		if name == "nop-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nop-test in %v", Providers())
	}
}
