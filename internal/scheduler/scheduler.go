// Package scheduler runs a pipeline on a fixed interval with at most one
// run in flight. Ticks that arrive while a run is active are dropped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/sluice/internal/metrics"
	"github.com/crimson-sun/sluice/internal/model"
)

// ErrRunInProgress is returned by Trigger when a run is already active.
var ErrRunInProgress = errors.New("run in progress")

// Runner executes one run. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, trigger model.Trigger) (model.RunReport, error)
}

// State is the scheduler's admission state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart starts a run as soon as Start is called.
func WithRunOnStart(on bool) Option {
	return func(s *Scheduler) { s.runOnStart = on }
}

// WithMetrics records skipped ticks and the in-progress gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler admits runs through a single compare-and-swap guard.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	running atomic.Bool
	paused  atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last *model.RunReport
}

// New creates a Scheduler that runs r every interval.
func New(r Runner, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   r,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start ticks until ctx is done, then waits for any in-flight run.
// Scheduled runs execute in their own goroutine so the ticker never blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.logger.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)
	if s.runOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.paused.Load() {
		s.skip(metrics.SkipPaused)
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skip(metrics.SkipBusy)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, model.TriggerSchedule)
	}()
}

func (s *Scheduler) skip(reason string) {
	s.skipped.Add(1)
	s.metrics.TickSkipped(reason)
	s.logger.Debug("tick skipped", "reason", reason)
}

// run executes one run. The caller must hold the guard; run releases it.
func (s *Scheduler) run(ctx context.Context, trigger model.Trigger) (model.RunReport, error) {
	s.metrics.SetRunning(true)
	defer func() {
		s.metrics.SetRunning(false)
		s.running.Store(false)
	}()

	rep, err := s.runner.Run(ctx, trigger)
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep, err
}

// Trigger runs once now, synchronously, under the same guard as scheduled
// runs. It works while paused.
func (s *Scheduler) Trigger(ctx context.Context) (model.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return model.RunReport{}, ErrRunInProgress
	}
	return s.run(ctx, model.TriggerManual)
}

// Exclusive runs fn while holding the run guard, so no scheduled or manual
// run can start until fn returns. It returns ErrRunInProgress without calling
// fn when a run is active.
func (s *Scheduler) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)
	return fn(ctx)
}

// Pause makes subsequent ticks skip until Resume.
func (s *Scheduler) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("scheduler paused")
	}
}

// Resume re-enables scheduled runs.
func (s *Scheduler) Resume() {
	if s.paused.Swap(false) {
		s.logger.Info("scheduler resumed")
	}
}

// Paused reports whether ticks are being skipped.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// State reports whether a run is active.
func (s *Scheduler) State() State {
	if s.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// Skipped returns the number of ticks that did not start a run.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Last returns the most recent run report, if any run has finished.
func (s *Scheduler) Last() (model.RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.RunReport{}, false
	}
	return *s.last, true
}
