package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/sluice/internal/httpclient"
	"github.com/crimson-sun/sluice/internal/model"
)

const (
	defaultBatchSize     = 1
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	maxRetries           = 3
)

// Option configures a webhook Sink.
type Option func(*Sink)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(s *Sink) { s.headers = h }
}

// WithBatchSize sets the number of reports accumulated before a flush. Default: 1.
func WithBatchSize(n int) Option {
	return func(s *Sink) { s.batchSize = n }
}

// WithFlushInterval sets the maximum time between flushes. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) { s.flushInterval = d }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) { s.timeout = d }
}

// WithBaseDelay sets the first retry delay. Default: 1s.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Sink) { s.baseDelay = d }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(s *Sink) { s.errFunc = f }
}

// Sink POSTs run reports to an HTTP endpoint as a JSON array. Reports
// accumulate until batchSize is reached or flushInterval elapses.
// Retries on 429 and 5xx.
type Sink struct {
	api           *httpclient.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	timeout       time.Duration
	baseDelay     time.Duration
	errFunc       func(error)
	mu            sync.Mutex
	pending       []model.RunReport
	timer         *time.Timer
}

// New creates a webhook sink targeting the given URL.
func New(url string, opts ...Option) *Sink {
	s := &Sink{
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		timeout:       defaultTimeout,
		baseDelay:     time.Second,
		errFunc:       func(err error) { slog.Warn("webhook flush error", "error", err) },
	}
	for _, opt := range opts {
		opt(s)
	}
	clientOpts := []httpclient.Option{
		httpclient.WithTimeout(s.timeout),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithBaseDelay(s.baseDelay),
	}
	for k, v := range s.headers {
		clientOpts = append(clientOpts, httpclient.WithHeader(k, v))
	}
	s.api = httpclient.New(url, "", clientOpts...)
	return s
}

// Write appends a report to the batch, flushing when batchSize is reached.
// A timer started on the first pending report flushes partial batches.
func (s *Sink) Write(ctx context.Context, r model.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, r)

	if len(s.pending) >= s.batchSize {
		return s.flushLocked(ctx)
	}

	if len(s.pending) == 1 {
		s.timer = time.AfterFunc(s.flushInterval, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := s.flushLocked(context.Background()); err != nil {
				s.errFunc(err)
			}
		})
	}
	return nil
}

// Close flushes any remaining reports and stops the timer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked(context.Background())
}

// flushLocked sends the pending batch. Caller must hold s.mu.
func (s *Sink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	batch := s.pending
	s.pending = nil

	if err := s.api.PostJSON(ctx, "", batch, nil); err != nil {
		return fmt.Errorf("webhook: post %d reports: %w", len(batch), err)
	}
	return nil
}
