package sluice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/inference"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/pipeline"
	"github.com/crimson-sun/sluice/internal/scheduler"
	"github.com/crimson-sun/sluice/internal/watermark"
)

// ErrRunInProgress is returned by RunOnce when another run is active.
var ErrRunInProgress = scheduler.ErrRunInProgress

// Source reads rows with a timestamp strictly after the given cursor.
// It is called once per run and must not modify the table.
type Source interface {
	Rows(ctx context.Context, after time.Time) ([]Row, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, after time.Time) ([]Row, error)

// Rows calls f.
func (f SourceFunc) Rows(ctx context.Context, after time.Time) ([]Row, error) { return f(ctx, after) }

// Model sends an instruction and a batch of rows to an inference service
// and returns its text response.
type Model interface {
	Infer(ctx context.Context, instruction string, rows []Row) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, instruction string, rows []Row) (string, error)

// Infer calls f.
func (f ModelFunc) Infer(ctx context.Context, instruction string, rows []Row) (string, error) {
	return f(ctx, instruction, rows)
}

// Feeder runs the extract-infer-advance loop for one source and one model.
type Feeder struct {
	store *watermark.Store
	sched *scheduler.Scheduler
}

// New creates a Feeder. Nothing runs until Start or RunOnce is called.
func New(src Source, m Model, opts ...Option) (*Feeder, error) {
	if src == nil || m == nil {
		return nil, errors.New("sluice: source and model are required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval <= 0 {
		return nil, fmt.Errorf("sluice: interval must be positive, got %s", o.interval)
	}
	verbosity, err := compactor.ParseVerbosity(o.verbosity)
	if err != nil {
		return nil, fmt.Errorf("sluice: %w", err)
	}

	var backend watermark.Backend = watermark.NewMemory()
	if o.watermarkFile != "" {
		backend = watermark.NewFile(o.watermarkFile)
	}
	store := watermark.New(backend, o.watermarkKey)

	callerOpts := []inference.CallerOption{
		inference.WithCompactor(compactor.New(verbosity)),
		inference.WithRateLimit(o.ratePerMinute),
		inference.WithLogger(o.logger),
	}
	if o.timeout > 0 {
		callerOpts = append(callerOpts, inference.WithTimeout(o.timeout))
	}
	if o.instruction != "" {
		callerOpts = append(callerOpts, inference.WithInstruction(o.instruction))
	}
	if o.fallback != "" {
		callerOpts = append(callerOpts, inference.WithFallbackText(o.fallback))
	}
	if o.sendEmpty {
		callerOpts = append(callerOpts, inference.WithEmptyBatch(inference.EmptySend))
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithName(o.name),
		pipeline.WithLogger(o.logger),
	}
	if o.onReport != nil {
		pipeOpts = append(pipeOpts, pipeline.WithSink(callbackSink(o.onReport)))
	}
	p := pipeline.New(store, sourceAdapter{src}, inference.NewCaller(modelAdapter{m}, callerOpts...), pipeOpts...)

	sched := scheduler.New(p, o.interval,
		scheduler.WithRunOnStart(o.runOnStart),
		scheduler.WithLogger(o.logger),
	)
	return &Feeder{store: store, sched: sched}, nil
}

// Start runs on the configured interval until ctx is canceled, then waits
// for any in-flight run and returns ctx.Err().
func (f *Feeder) Start(ctx context.Context) error {
	return f.sched.Start(ctx)
}

// RunOnce runs immediately, even while paused. The report is returned
// alongside any error so a failed run can still be inspected.
func (f *Feeder) RunOnce(ctx context.Context) (Report, error) {
	rep, err := f.sched.Trigger(ctx)
	if errors.Is(err, scheduler.ErrRunInProgress) {
		return Report{}, err
	}
	return reportFromModel(rep), err
}

// Pause makes scheduled runs skip until Resume. A run already in flight completes.
func (f *Feeder) Pause() { f.sched.Pause() }

// Resume re-enables scheduled runs.
func (f *Feeder) Resume() { f.sched.Resume() }

// Paused reports whether scheduled runs are paused.
func (f *Feeder) Paused() bool { return f.sched.Paused() }

// Watermark returns the stored cursor. Before the first successful run it is the Unix epoch.
func (f *Feeder) Watermark(ctx context.Context) (time.Time, error) {
	return f.store.Get(ctx)
}

// SetWatermark overwrites the cursor, moving it backwards if needed.
// It returns ErrRunInProgress while a run is active; no run starts until the write completes.
func (f *Feeder) SetWatermark(ctx context.Context, t time.Time) error {
	return f.sched.Exclusive(ctx, func(ctx context.Context) error {
		return f.store.Set(ctx, t)
	})
}

// ResetWatermark moves the cursor back to the epoch so every row is sent again.
func (f *Feeder) ResetWatermark(ctx context.Context) error {
	return f.sched.Exclusive(ctx, f.store.Reset)
}

// Close releases the watermark store. Call it after Start has returned.
func (f *Feeder) Close() error {
	return f.store.Close()
}

type sourceAdapter struct{ src Source }

func (a sourceAdapter) Query(ctx context.Context, cursor time.Time) ([]model.Row, error) {
	rows, err := a.src.Rows(ctx, cursor)
	if err != nil {
		return nil, err
	}
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		out[i] = rowToModel(r)
	}
	return out, nil
}

func (sourceAdapter) Close() error { return nil }

type modelAdapter struct{ m Model }

func (a modelAdapter) Infer(ctx context.Context, p inference.Payload) (string, error) {
	rows := make([]Row, len(p.Rows))
	for i, r := range p.Rows {
		rows[i] = rowFromModel(r)
	}
	return a.m.Infer(ctx, p.Instruction, rows)
}

func (modelAdapter) Close() error { return nil }

type callbackSink func(Report)

func (f callbackSink) Write(_ context.Context, r model.RunReport) error {
	f(reportFromModel(r))
	return nil
}

func (callbackSink) Close() error { return nil }
