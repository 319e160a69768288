package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/crimson-sun/sluice/internal/model"
)

const (
	DefaultInstruction = "You are a data-processing agent. You will receive a batch of new database entries in JSON format. For each entry, simply respond with \"Hi\"."
	DefaultFallback    = "Hi (fallback - agent unreachable)"
	EmptyBatchText     = "No new entries to process."
	DefaultModel       = "gemini-1.5-flash-002"
	DefaultTimeout     = 60 * time.Second
)

var (
	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("empty inference response")
	// ErrRateLimited marks quota and throttling failures.
	ErrRateLimited = errors.New("inference rate limited")
)

// Client sends one payload to an inference service and returns its text.
type Client interface {
	Infer(ctx context.Context, p Payload) (string, error)
	Close() error
}

// Payload is the structured request: the instruction, the row count, and the rows.
type Payload struct {
	Instruction string      `json:"instruction"`
	RowCount    int         `json:"row_count"`
	Rows        []model.Row `json:"rows"`
}

// NewPayload builds a payload. Rows is never nil so it encodes as [].
func NewPayload(instruction string, rows []model.Row) Payload {
	if rows == nil {
		rows = []model.Row{}
	}
	return Payload{Instruction: instruction, RowCount: len(rows), Rows: rows}
}

// Prompt renders the payload as one text prompt for chat-style models:
// the instruction, then the rows as indented JSON.
func (p Payload) Prompt() (string, error) {
	data, err := json.MarshalIndent(p.Rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return fmt.Sprintf("%s Here are the %d entries:\n\n%s", p.Instruction, p.RowCount, data), nil
}

// Config selects and addresses a provider.
type Config struct {
	Provider string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Constructor creates a Client from configuration.
type Constructor func(cfg Config) (Client, error)

var registry = map[string]Constructor{}

// Register adds a provider constructor under the given name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Open resolves cfg.Provider in the registry and constructs the client.
func Open(cfg Config) (Client, error) {
	ctor, ok := registry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
	return ctor(cfg)
}

// Providers returns the names of all registered providers, sorted.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
