package watermark

import (
	"fmt"
	"sort"
)

// Config selects and addresses a backend.
type Config struct {
	Backend string // registered name: "memory", "file", "sqlite", "postgres", "pebble"
	DSN     string // file path, database DSN, or pebble directory
	Table   string // SQL backends only
}

// Opener creates a Backend from configuration.
type Opener func(cfg Config) (Backend, error)

var registry = map[string]Opener{}

// Register adds a backend opener under the given name.
func Register(name string, open Opener) {
	registry[name] = open
}

// Open resolves cfg.Backend in the registry and opens it.
func Open(cfg Config) (Backend, error) {
	open, ok := registry[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown watermark backend: %s", cfg.Backend)
	}
	return open(cfg)
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
