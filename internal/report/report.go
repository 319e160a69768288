// Package report delivers run reports to their destinations.
package report

import (
	"context"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/model"
)

// Sink defines the interface for run report destinations.
type Sink interface {
	Write(ctx context.Context, r model.RunReport) error
	Close() error
}

// Format returns a copy of the report shaped for the given verbosity.
// At Minimal the inference text is reduced to its summary line.
// At Standard/Full the report is unchanged.
func Format(r model.RunReport, verbosity compactor.Verbosity) model.RunReport {
	if verbosity != compactor.Minimal || r.Inference == nil {
		return r
	}
	inf := *r.Inference
	inf.Text = compactor.Summarize(inf.Text)
	r.Inference = &inf
	return r
}
