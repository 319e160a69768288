package source

import (
	"fmt"
	"sort"
)

// Constructor creates a Source from configuration.
type Constructor func(cfg Config) (Source, error)

var registry = map[string]Constructor{}

// Register adds a source constructor under the given provider name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Open resolves cfg.Provider in the registry and constructs the source.
func Open(cfg Config) (Source, error) {
	ctor, ok := registry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown source provider: %s", cfg.Provider)
	}
	return ctor(cfg)
}

// Providers returns the names of all registered source providers, sorted.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
