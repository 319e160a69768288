package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/report"
)

// Sink writes JSON-encoded run reports to stdout.
type Sink struct {
	mu        sync.Mutex
	enc       *json.Encoder
	verbosity compactor.Verbosity
}

// New creates a stdout Sink with verbosity-aware formatting
// and optional pretty-printed JSON.
func New(verbosity compactor.Verbosity, pretty bool) *Sink {
	return NewWriter(os.Stdout, verbosity, pretty)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, verbosity compactor.Verbosity, pretty bool) *Sink {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Sink{enc: enc, verbosity: verbosity}
}

func (s *Sink) Write(_ context.Context, r model.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(report.Format(r, s.verbosity)); err != nil {
		return fmt.Errorf("stdout report: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return nil
}
