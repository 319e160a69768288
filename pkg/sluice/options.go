package sluice

import (
	"log/slog"
	"time"
)

type options struct {
	name          string
	interval      time.Duration
	runOnStart    bool
	watermarkFile string
	watermarkKey  string
	timeout       time.Duration
	instruction   string
	fallback      string
	sendEmpty     bool
	ratePerMinute int
	verbosity     string
	onReport      func(Report)
	logger        *slog.Logger
}

// Option configures a Feeder.
type Option func(*options)

// WithName sets the pipeline name used in reports and logs. Default: "sluice".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithInterval sets the time between scheduled runs. Default: 10m.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithRunOnStart makes Start run once immediately instead of waiting a full interval.
func WithRunOnStart() Option {
	return func(o *options) { o.runOnStart = true }
}

// WithWatermarkFile persists the watermark in a JSON file at path.
// Without it the watermark lives in memory and is lost on exit.
func WithWatermarkFile(path string) Option {
	return func(o *options) { o.watermarkFile = path }
}

// WithWatermarkKey sets the key the watermark is stored under. Default: "sluice_pipeline_hwm".
func WithWatermarkKey(key string) Option {
	return func(o *options) { o.watermarkKey = key }
}

// WithTimeout bounds each inference call. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithInstruction sets the instruction sent with every batch.
func WithInstruction(s string) Option {
	return func(o *options) { o.instruction = s }
}

// WithFallback sets the text used when the inference call fails.
func WithFallback(s string) Option {
	return func(o *options) { o.fallback = s }
}

// WithSendEmpty calls the model even when a run finds no new rows.
// By default empty runs skip the call.
func WithSendEmpty() Option {
	return func(o *options) { o.sendEmpty = true }
}

// WithRateLimit allows at most perMinute inference calls per minute.
func WithRateLimit(perMinute int) Option {
	return func(o *options) { o.ratePerMinute = perMinute }
}

// WithVerbosity sets message compaction before sending: "minimal", "standard", "full".
// Default: "standard".
func WithVerbosity(v string) Option {
	return func(o *options) { o.verbosity = v }
}

// WithOnReport registers a callback invoked after every run.
func WithOnReport(f func(Report)) Option {
	return func(o *options) { o.onReport = f }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		name:         "sluice",
		interval:     10 * time.Minute,
		watermarkKey: "sluice_pipeline_hwm",
		verbosity:    "standard",
		logger:       slog.Default(),
	}
}
