// Package pipeline runs one extraction cycle: read the watermark, extract
// newer rows, then call inference and advance the watermark concurrently.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/metrics"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/report"
	"github.com/crimson-sun/sluice/internal/source"
	"github.com/crimson-sun/sluice/internal/watermark"
)

// Inferrer turns a batch into an inference result. It must not fail;
// *inference.Caller is the production implementation.
type Inferrer interface {
	Infer(ctx context.Context, batch model.Batch) model.InferenceResult
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithName sets the pipeline name recorded on reports. Default: "sluice".
func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

// WithSink delivers every run report to s. Sink failures are logged, never fatal.
func WithSink(s report.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithMetrics records run and stage metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline connects a watermark store, a source and an inferrer.
type Pipeline struct {
	name      string
	store     WatermarkStore
	extractor *Extractor
	inferrer  Inferrer
	advancer  *Advancer
	sink      report.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Pipeline from the given components.
func New(store WatermarkStore, src source.Source, inf Inferrer, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:     "sluice",
		store:    store,
		inferrer: inf,
		advancer: NewAdvancer(store),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = NewExtractor(src, p.logger)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// runContext carries one run's state between stages. It is never shared
// across runs.
type runContext struct {
	id      string
	trigger model.Trigger
	started time.Time
	logger  *slog.Logger
	cursor  time.Time
	batch   model.Batch
}

// Run executes one run. The report is always returned; the error is a
// *StageError when a fatal stage failed. A fallback inference result is
// not an error: the run succeeds with Degraded set.
func (p *Pipeline) Run(ctx context.Context, trigger model.Trigger) (model.RunReport, error) {
	rc := &runContext{
		id:      uuid.NewString(),
		trigger: trigger,
		started: time.Now(),
	}
	rc.logger = p.logger.With("run_id", rc.id, "pipeline", p.name)

	rep := model.RunReport{
		RunID:     rc.id,
		Pipeline:  p.name,
		Trigger:   trigger,
		StartedAt: rc.started.UTC(),
	}

	var err error
	rc.cursor, err = timed(p, model.StageWatermarkRead, func() (time.Time, error) {
		return p.store.Get(ctx)
	})
	if err != nil {
		return p.finish(ctx, rc, rep, &StageError{Stage: model.StageWatermarkRead, Err: err})
	}
	rep.CursorBefore = rc.cursor
	rep.CursorAfter = rc.cursor
	rc.logger.DebugContext(ctx, "run started", "trigger", trigger, "cursor", watermark.Format(rc.cursor))

	rc.batch, err = timed(p, model.StageExtract, func() (model.Batch, error) {
		return p.extractor.Extract(ctx, rc.cursor)
	})
	if err != nil {
		return p.finish(ctx, rc, rep, &StageError{Stage: model.StageExtract, Err: err})
	}
	rep.RowCount = rc.batch.Len()

	var (
		g   errgroup.Group
		inf model.InferenceResult
		adv model.Advance
	)
	g.Go(func() error {
		start := time.Now()
		inf = p.inferrer.Infer(ctx, rc.batch)
		p.metrics.ObserveStage(model.StageInfer, time.Since(start))
		return nil
	})
	g.Go(func() error {
		var err error
		adv, err = timed(p, model.StageAdvance, func() (model.Advance, error) {
			return p.advancer.Advance(ctx, rc.batch)
		})
		return err
	})
	err = g.Wait()

	rep.Inference = &inf
	rep.Degraded = inf.Fallback
	if err != nil {
		return p.finish(ctx, rc, rep, &StageError{Stage: model.StageAdvance, Err: err})
	}
	rep.Advanced = adv.Advanced
	rep.CursorAfter = adv.Cursor
	return p.finish(ctx, rc, rep, nil)
}

func (p *Pipeline) finish(ctx context.Context, rc *runContext, rep model.RunReport, stageErr *StageError) (model.RunReport, error) {
	rep.FinishedAt = time.Now().UTC()
	rep.Status = model.StatusSucceeded
	if stageErr != nil {
		rep.Status = model.StatusFailed
		rep.FailedStage = stageErr.Stage
		rep.Error = stageErr.Err.Error()
	}
	p.metrics.ObserveRun(rep)

	if p.sink != nil {
		if err := p.sink.Write(ctx, rep); err != nil {
			rc.logger.WarnContext(ctx, "report delivery failed", "error", err)
		}
	}

	if stageErr != nil {
		rc.logger.ErrorContext(ctx, "run failed",
			"stage", stageErr.Stage,
			"error", stageErr.Err,
			"cursor", watermark.Format(rep.CursorBefore),
			"duration", rep.Duration(),
		)
		return rep, stageErr
	}

	response := ""
	if rep.Inference != nil {
		response = compactor.Summarize(rep.Inference.Text)
	}
	rc.logger.InfoContext(ctx, "run complete",
		"rows", rep.RowCount,
		"watermark", watermark.Format(rep.CursorAfter),
		"advanced", rep.Advanced,
		"degraded", rep.Degraded,
		"response", response,
		"duration", rep.Duration(),
	)
	return rep, nil
}

// timed runs fn and records its duration against stage.
func timed[T any](p *Pipeline, stage model.Stage, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	p.metrics.ObserveStage(stage, time.Since(start))
	return v, err
}
