package multi

import (
	"context"
	"errors"

	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/report"
)

// Multi fans out run reports to several sinks. A failing sink does not
// stop delivery to the rest.
type Multi struct {
	sinks []report.Sink
}

// New creates a Multi over the given sinks.
func New(sinks ...report.Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Write delivers the report to every sink and joins their errors.
func (m *Multi) Write(ctx context.Context, r model.RunReport) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
