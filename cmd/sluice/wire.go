package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/config"
	"github.com/crimson-sun/sluice/internal/inference"
	"github.com/crimson-sun/sluice/internal/metrics"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/pipeline"
	"github.com/crimson-sun/sluice/internal/report"
	"github.com/crimson-sun/sluice/internal/report/async"
	"github.com/crimson-sun/sluice/internal/report/file"
	"github.com/crimson-sun/sluice/internal/report/multi"
	"github.com/crimson-sun/sluice/internal/report/stdout"
	"github.com/crimson-sun/sluice/internal/report/webhook"
	"github.com/crimson-sun/sluice/internal/source"
	"github.com/crimson-sun/sluice/internal/watermark"

	// Register providers and backends.
	_ "github.com/crimson-sun/sluice/internal/inference/gemini"
	_ "github.com/crimson-sun/sluice/internal/inference/httpinfer"
	_ "github.com/crimson-sun/sluice/internal/source/sqlsource"
	_ "github.com/crimson-sun/sluice/internal/source/supabase"
	_ "github.com/crimson-sun/sluice/internal/watermark/pebblestore"
	_ "github.com/crimson-sun/sluice/internal/watermark/sqlstore"
)

// app holds every component of one configured pipeline.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *watermark.Store
	src      source.Source
	client   inference.Client
	sink     report.Sink
	pipeline *pipeline.Pipeline
}

func openStore(cfg config.Config) (*watermark.Store, error) {
	backend, err := watermark.Open(cfg.WatermarkStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open watermark store: %w", err)
	}
	return watermark.New(backend, cfg.Watermark.Key), nil
}

func openSink(cfg config.Config, verbosity compactor.Verbosity, logger *slog.Logger) (report.Sink, error) {
	onError := func(err error) { logger.Warn("report delivery failed", "error", err) }

	var sinks []report.Sink
	for _, name := range cfg.Report.Sinks {
		switch name {
		case "stdout":
			sinks = append(sinks, stdout.New(verbosity, cfg.Report.Pretty))
		case "file":
			f, err := file.New(cfg.Report.File, verbosity, file.WithMaxSize(cfg.Report.FileMaxSize))
			if err != nil {
				return nil, errors.Join(err, multi.New(sinks...).Close())
			}
			sinks = append(sinks, f)
		case "webhook":
			sinks = append(sinks, webhook.New(cfg.Report.WebhookURL, webhook.WithOnError(onError)))
		default:
			return nil, fmt.Errorf("unknown report sink %q", name)
		}
	}
	var sink report.Sink = multi.New(sinks...)
	if cfg.Report.Async {
		sink = async.New(sink, async.WithOnError(onError))
	}
	return sink, nil
}

// build opens every component. On error, whatever was opened is closed.
func build(cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	verbosity, _ := compactor.ParseVerbosity(cfg.Inference.Verbosity)
	policy, _ := inference.ParseEmptyBatchPolicy(cfg.Inference.EmptyBatch)

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	if a.store, err = openStore(cfg); err != nil {
		return nil, err
	}
	if a.src, err = source.Open(cfg.SourceOpenConfig()); err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if a.client, err = inference.Open(cfg.InferenceClientConfig()); err != nil {
		return nil, fmt.Errorf("open inference client: %w", err)
	}
	if a.sink, err = openSink(cfg, verbosity, logger); err != nil {
		return nil, fmt.Errorf("open report sinks: %w", err)
	}

	var cmpOpts []compactor.Option
	if cfg.Inference.TokenBudget > 0 {
		cmpOpts = append(cmpOpts, compactor.WithTokenBudget(cfg.Inference.TokenBudget))
	}
	caller := inference.NewCaller(a.client,
		inference.WithTimeout(cfg.Inference.Timeout.Duration()),
		inference.WithInstruction(cfg.Inference.Instruction),
		inference.WithFallbackText(cfg.Inference.Fallback),
		inference.WithEmptyBatch(policy),
		inference.WithRateLimit(cfg.Inference.RatePerMinute),
		inference.WithCompactor(compactor.New(verbosity, cmpOpts...)),
		inference.WithOnFallback(func(r model.InferenceResult) { a.metrics.Fallback(r.Reason) }),
		inference.WithLogger(logger),
	)

	a.pipeline = pipeline.New(a.store, a.src, caller,
		pipeline.WithName(cfg.Pipeline),
		pipeline.WithSink(a.sink),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(logger),
	)
	return a, nil
}

// Close releases every opened component.
func (a *app) Close() error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.src != nil {
		errs = append(errs, a.src.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
