package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/inference"
	"github.com/crimson-sun/sluice/internal/source"
	"github.com/crimson-sun/sluice/internal/watermark"
)

// Version is the sluice release version.
const Version = "0.3.0"

// Config holds all sluice configuration.
type Config struct {
	Pipeline  string          `yaml:"pipeline"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Source    SourceConfig    `yaml:"source"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Inference InferenceConfig `yaml:"inference"`
	Report    ReportConfig    `yaml:"report"`
	Control   ControlConfig   `yaml:"control"`
	Log       LogConfig       `yaml:"log"`
}

// ScheduleConfig controls the run cadence.
type ScheduleConfig struct {
	Interval        Duration `yaml:"interval"`
	RunOnStart      bool     `yaml:"run_on_start"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// SourceConfig selects and addresses the row source.
type SourceConfig struct {
	Provider string            `yaml:"provider"`
	DSN      string            `yaml:"dsn"`
	Endpoint string            `yaml:"endpoint"`
	APIKey   string            `yaml:"api_key"`
	Table    string            `yaml:"table"`
	Columns  source.Columns    `yaml:"columns"`
	Extra    map[string]string `yaml:"extra"`
}

// WatermarkConfig selects the watermark backend and key.
type WatermarkConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
	Key     string `yaml:"key"`
	Table   string `yaml:"table"`
}

// InferenceConfig holds inference provider and caller settings.
type InferenceConfig struct {
	Provider      string   `yaml:"provider"`
	Endpoint      string   `yaml:"endpoint"`
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	Timeout       Duration `yaml:"timeout"`
	EmptyBatch    string   `yaml:"empty_batch"` // "skip", "send"
	RatePerMinute int      `yaml:"rate_per_minute"`
	Instruction   string   `yaml:"instruction"`
	Fallback      string   `yaml:"fallback"`
	Verbosity     string   `yaml:"verbosity"` // "minimal", "standard", "full"
	TokenBudget   int      `yaml:"token_budget"`
}

// ReportConfig lists the run report sinks.
type ReportConfig struct {
	Sinks       []string `yaml:"sinks"` // "stdout", "file", "webhook"
	File        string   `yaml:"file"`
	FileMaxSize int64    `yaml:"file_max_size"`
	WebhookURL  string   `yaml:"webhook_url"`
	Pretty      bool     `yaml:"pretty"`
	Async       bool     `yaml:"async"`
}

// ControlConfig holds the operator HTTP API settings. An empty Addr disables it.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "10m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: "sluice",
		Schedule: ScheduleConfig{
			Interval:        Duration(10 * time.Minute),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Source: SourceConfig{
			Provider: "postgres",
			Table:    "events",
			Columns:  source.DefaultColumns(),
		},
		Watermark: WatermarkConfig{
			Backend: "file",
			DSN:     "sluice-watermark.json",
			Key:     "sluice_pipeline_hwm",
		},
		Inference: InferenceConfig{
			Provider:    "gemini",
			Model:       inference.DefaultModel,
			Timeout:     Duration(inference.DefaultTimeout),
			EmptyBatch:  string(inference.EmptySkip),
			Instruction: inference.DefaultInstruction,
			Fallback:    inference.DefaultFallback,
			Verbosity:   "standard",
		},
		Report: ReportConfig{
			Sinks: []string{"stdout"},
		},
		Control: ControlConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then SLUICE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Source.Columns = cfg.Source.Columns.WithDefaults()
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&cfg.Pipeline, "SLUICE_PIPELINE")
	errs = append(errs,
		getenvDuration(&cfg.Schedule.Interval, "SLUICE_INTERVAL"),
		getenvBool(&cfg.Schedule.RunOnStart, "SLUICE_RUN_ON_START"),
		getenvDuration(&cfg.Schedule.ShutdownTimeout, "SLUICE_SHUTDOWN_TIMEOUT"),
	)

	str(&cfg.Source.Provider, "SLUICE_SOURCE")
	str(&cfg.Source.DSN, "SLUICE_SOURCE_DSN")
	str(&cfg.Source.Endpoint, "SLUICE_SOURCE_ENDPOINT")
	str(&cfg.Source.APIKey, "SLUICE_SOURCE_API_KEY")
	str(&cfg.Source.Table, "SLUICE_SOURCE_TABLE")
	str(&cfg.Source.Columns.ID, "SLUICE_SOURCE_ID_COLUMN")
	str(&cfg.Source.Columns.Message, "SLUICE_SOURCE_MESSAGE_COLUMN")
	str(&cfg.Source.Columns.Severity, "SLUICE_SOURCE_SEVERITY_COLUMN")
	str(&cfg.Source.Columns.Source, "SLUICE_SOURCE_SOURCE_COLUMN")
	str(&cfg.Source.Columns.Timestamp, "SLUICE_SOURCE_TIMESTAMP_COLUMN")
	loadSourceExtra(cfg)

	str(&cfg.Watermark.Backend, "SLUICE_WATERMARK_BACKEND")
	str(&cfg.Watermark.DSN, "SLUICE_WATERMARK_DSN")
	str(&cfg.Watermark.Key, "SLUICE_WATERMARK_KEY")
	str(&cfg.Watermark.Table, "SLUICE_WATERMARK_TABLE")

	str(&cfg.Inference.Provider, "SLUICE_INFERENCE_PROVIDER")
	str(&cfg.Inference.Endpoint, "SLUICE_INFERENCE_ENDPOINT")
	str(&cfg.Inference.APIKey, "SLUICE_INFERENCE_API_KEY")
	str(&cfg.Inference.Model, "SLUICE_INFERENCE_MODEL")
	str(&cfg.Inference.EmptyBatch, "SLUICE_INFERENCE_EMPTY_BATCH")
	str(&cfg.Inference.Instruction, "SLUICE_INFERENCE_INSTRUCTION")
	str(&cfg.Inference.Fallback, "SLUICE_INFERENCE_FALLBACK")
	str(&cfg.Inference.Verbosity, "SLUICE_VERBOSITY")
	errs = append(errs,
		getenvDuration(&cfg.Inference.Timeout, "SLUICE_INFERENCE_TIMEOUT"),
		getenvInt(&cfg.Inference.RatePerMinute, "SLUICE_INFERENCE_RATE"),
		getenvInt(&cfg.Inference.TokenBudget, "SLUICE_INFERENCE_TOKEN_BUDGET"),
	)

	if v := os.Getenv("SLUICE_REPORT"); v != "" {
		cfg.Report.Sinks = splitList(v)
	}
	str(&cfg.Report.File, "SLUICE_REPORT_FILE")
	str(&cfg.Report.WebhookURL, "SLUICE_REPORT_WEBHOOK_URL")
	errs = append(errs,
		getenvBool(&cfg.Report.Pretty, "SLUICE_REPORT_PRETTY"),
		getenvBool(&cfg.Report.Async, "SLUICE_REPORT_ASYNC"),
	)

	// An explicitly empty SLUICE_CONTROL_ADDR disables the control API.
	if v, ok := os.LookupEnv("SLUICE_CONTROL_ADDR"); ok {
		cfg.Control.Addr = v
	}
	str(&cfg.Log.Level, "SLUICE_LOG_LEVEL")
	str(&cfg.Log.Format, "SLUICE_LOG_FORMAT")

	return errors.Join(errs...)
}

// loadSourceExtra reads provider-specific env vars into Source.Extra.
func loadSourceExtra(cfg *Config) {
	vars := []struct {
		envVar   string
		extraKey string
	}{
		{"SLUICE_SUPABASE_PROJECT_REF", "project_ref"},
		{"SLUICE_SUPABASE_PAGE_SIZE", "page_size"},
	}
	for _, v := range vars {
		if val := os.Getenv(v.envVar); val != "" {
			if cfg.Source.Extra == nil {
				cfg.Source.Extra = make(map[string]string)
			}
			cfg.Source.Extra[v.extraKey] = val
		}
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Pipeline == "" {
		errs = append(errs, errors.New("pipeline name is required"))
	}
	if c.Schedule.Interval.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("schedule interval must be positive, got %s", c.Schedule.Interval.Duration()))
	}
	if c.Source.Provider == "" {
		errs = append(errs, errors.New("source provider is required"))
	}
	if c.Source.Table == "" {
		errs = append(errs, errors.New("source table is required"))
	}
	if c.Watermark.Backend == "" {
		errs = append(errs, errors.New("watermark backend is required"))
	}
	if c.Watermark.Key == "" {
		errs = append(errs, errors.New("watermark key is required"))
	}
	if c.Inference.Provider == "" {
		errs = append(errs, errors.New("inference provider is required"))
	}
	if c.Inference.Timeout.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("inference timeout must be positive, got %s", c.Inference.Timeout.Duration()))
	}
	if c.Inference.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("inference rate must not be negative, got %d", c.Inference.RatePerMinute))
	}
	if _, err := inference.ParseEmptyBatchPolicy(c.Inference.EmptyBatch); err != nil {
		errs = append(errs, err)
	}
	if _, err := compactor.ParseVerbosity(c.Inference.Verbosity); err != nil {
		errs = append(errs, err)
	}
	for _, sink := range c.Report.Sinks {
		switch sink {
		case "stdout":
		case "file":
			if c.Report.File == "" {
				errs = append(errs, errors.New("report sink file requires a file path"))
			}
		case "webhook":
			if c.Report.WebhookURL == "" {
				errs = append(errs, errors.New("report sink webhook requires a URL"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown report sink %q", sink))
		}
	}
	return errors.Join(errs...)
}

// WatermarkStoreConfig converts to the watermark registry config.
func (c Config) WatermarkStoreConfig() watermark.Config {
	return watermark.Config{Backend: c.Watermark.Backend, DSN: c.Watermark.DSN, Table: c.Watermark.Table}
}

// SourceOpenConfig converts to the source registry config.
func (c Config) SourceOpenConfig() source.Config {
	return source.Config{
		Provider: c.Source.Provider,
		DSN:      c.Source.DSN,
		Endpoint: c.Source.Endpoint,
		APIKey:   c.Source.APIKey,
		Table:    c.Source.Table,
		Columns:  c.Source.Columns,
		Extra:    c.Source.Extra,
	}
}

// InferenceClientConfig converts to the inference registry config.
func (c Config) InferenceClientConfig() inference.Config {
	return inference.Config{
		Provider: c.Inference.Provider,
		Endpoint: c.Inference.Endpoint,
		APIKey:   c.Inference.APIKey,
		Model:    c.Inference.Model,
		Timeout:  c.Inference.Timeout.Duration(),
	}
}

func getenvDuration(dst *Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}

func getenvBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func getenvInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
