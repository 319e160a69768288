package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/source"
)

// Extractor reads the rows newer than a cursor from a source.
type Extractor struct {
	source source.Source
	logger *slog.Logger
}

// NewExtractor creates an Extractor over src. A nil logger uses slog.Default().
func NewExtractor(src source.Source, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{source: src, logger: logger}
}

// Extract returns every row with a timestamp strictly after cursor, oldest
// first. Rows the source returns at or before the cursor are dropped.
func (e *Extractor) Extract(ctx context.Context, cursor time.Time) (model.Batch, error) {
	batch := model.Batch{After: cursor}
	rows, err := e.source.Query(ctx, cursor)
	if err != nil {
		return batch, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	slices.SortStableFunc(rows, func(a, b model.Row) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	kept := rows[:0]
	dropped := 0
	for _, r := range rows {
		if !r.Timestamp.After(cursor) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	if dropped > 0 {
		e.logger.WarnContext(ctx, "source returned rows at or before the cursor",
			"dropped", dropped, "cursor", cursor)
	}
	batch.Rows = kept
	return batch, nil
}
