package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/crimson-sun/sluice/internal/model"
)

// WatermarkStore reads and writes the pipeline cursor.
type WatermarkStore interface {
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, t time.Time) error
}

// Advancer moves the watermark to the newest row of a batch.
type Advancer struct {
	store WatermarkStore
}

// NewAdvancer creates an Advancer writing to store.
func NewAdvancer(store WatermarkStore) *Advancer {
	return &Advancer{store: store}
}

// Advance writes max(timestamp) of the batch. An empty batch is a no-op.
// The outcome of inference plays no part.
func (a *Advancer) Advance(ctx context.Context, batch model.Batch) (model.Advance, error) {
	res := model.Advance{Previous: batch.After, Cursor: batch.After}
	if batch.Empty() {
		return res, nil
	}
	next := batch.MaxTimestamp()
	if !next.After(batch.After) {
		return res, fmt.Errorf("%w: %s is not after %s", ErrWatermarkRegression,
			next.UTC().Format(time.RFC3339Nano), batch.After.UTC().Format(time.RFC3339Nano))
	}
	if err := a.store.Set(ctx, next); err != nil {
		return res, err
	}
	res.Advanced = true
	res.Cursor = next
	return res, nil
}
