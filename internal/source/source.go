package source

import (
	"context"
	"time"

	"github.com/crimson-sun/sluice/internal/model"
)

// Source reads rows from one table of an external system. Implementations
// must be read-only so a query can be repeated after a failed run.
type Source interface {
	// Query returns rows with timestamp strictly after cursor, ascending by timestamp.
	Query(ctx context.Context, cursor time.Time) ([]model.Row, error)

	Close() error
}

// Config holds provider-specific connection settings.
type Config struct {
	Provider string
	DSN      string
	Endpoint string
	APIKey   string
	Table    string
	Columns  Columns
	Extra    map[string]string
}

// Columns maps the row fields to source column names.
type Columns struct {
	ID        string `yaml:"id"`
	Message   string `yaml:"message"`
	Severity  string `yaml:"severity"`
	Source    string `yaml:"source"`
	Timestamp string `yaml:"timestamp"`
}

// DefaultColumns returns the column names used when none are configured.
func DefaultColumns() Columns {
	return Columns{
		ID:        "id",
		Message:   "message",
		Severity:  "severity",
		Source:    "source",
		Timestamp: "timestamp",
	}
}

// WithDefaults fills empty column names from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.Message == "" {
		c.Message = d.Message
	}
	if c.Severity == "" {
		c.Severity = d.Severity
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Timestamp == "" {
		c.Timestamp = d.Timestamp
	}
	return c
}

// List returns the column names in row field order.
func (c Columns) List() []string {
	return []string{c.ID, c.Message, c.Severity, c.Source, c.Timestamp}
}
