package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/httpclient"
	"github.com/crimson-sun/sluice/internal/model"
)

// EmptyBatchPolicy decides what happens when a run extracts no rows.
type EmptyBatchPolicy string

const (
	EmptySkip EmptyBatchPolicy = "skip" // no call; result is EmptyBatchText
	EmptySend EmptyBatchPolicy = "send" // call with zero rows
)

// ParseEmptyBatchPolicy validates a policy name.
func ParseEmptyBatchPolicy(s string) (EmptyBatchPolicy, error) {
	switch p := EmptyBatchPolicy(strings.ToLower(s)); p {
	case EmptySkip, EmptySend:
		return p, nil
	case "":
		return EmptySkip, nil
	default:
		return EmptySkip, fmt.Errorf("unknown empty batch policy %q", s)
	}
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithTimeout bounds each call, including any rate-limit wait. Default: 60s.
func WithTimeout(d time.Duration) CallerOption {
	return func(c *Caller) { c.timeout = d }
}

// WithInstruction sets the fixed instruction sent with every batch.
func WithInstruction(s string) CallerOption {
	return func(c *Caller) { c.instruction = s }
}

// WithFallbackText sets the text returned when a call fails.
func WithFallbackText(s string) CallerOption {
	return func(c *Caller) { c.fallback = s }
}

// WithEmptyBatch sets the empty batch policy. Default: EmptySkip.
func WithEmptyBatch(p EmptyBatchPolicy) CallerOption {
	return func(c *Caller) { c.emptyBatch = p }
}

// WithRateLimit allows at most perMinute calls per minute. 0 disables limiting.
func WithRateLimit(perMinute int) CallerOption {
	return func(c *Caller) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithCompactor shapes row messages before they are sent.
func WithCompactor(cmp *compactor.Compactor) CallerOption {
	return func(c *Caller) { c.compactor = cmp }
}

// WithOnFallback sets a callback invoked for every fallback result.
func WithOnFallback(f func(model.InferenceResult)) CallerOption {
	return func(c *Caller) { c.onFallback = f }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) { c.logger = l }
}

// Caller invokes a Client for one batch and never fails: every error becomes
// a fallback result carrying the reason.
type Caller struct {
	client      Client
	timeout     time.Duration
	instruction string
	fallback    string
	emptyBatch  EmptyBatchPolicy
	limiter     *rate.Limiter
	compactor   *compactor.Compactor
	onFallback  func(model.InferenceResult)
	logger      *slog.Logger
	fallbacks   atomic.Int64
}

// NewCaller wraps client.
func NewCaller(client Client, opts ...CallerOption) *Caller {
	c := &Caller{
		client:      client,
		timeout:     DefaultTimeout,
		instruction: DefaultInstruction,
		fallback:    DefaultFallback,
		emptyBatch:  EmptySkip,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fallbacks returns how many fallback results this caller has produced.
func (c *Caller) Fallbacks() int64 {
	return c.fallbacks.Load()
}

// Infer sends batch to the service and returns its text, or the fallback.
func (c *Caller) Infer(ctx context.Context, batch model.Batch) model.InferenceResult {
	start := time.Now()
	if batch.Empty() && c.emptyBatch == EmptySkip {
		return model.InferenceResult{Text: EmptyBatchText, Skipped: true}
	}

	rows := batch.Rows
	if c.compactor != nil {
		rows = c.compactor.Rows(rows)
	}
	payload := NewPayload(c.instruction, rows)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return c.fail(ctx, model.ReasonRateLimited, fmt.Errorf("%w: %w", ErrRateLimited, err), start)
		}
	}

	text, err := c.call(callCtx, payload)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		return c.fail(ctx, classify(callCtx, err), err, start)
	}
	return model.InferenceResult{Text: text, Duration: time.Since(start)}
}

// call runs the client, converting a panic into an error.
func (c *Caller) call(ctx context.Context, p Payload) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference client panic: %v", r)
		}
	}()
	return c.client.Infer(ctx, p)
}

func (c *Caller) fail(ctx context.Context, reason string, err error, start time.Time) model.InferenceResult {
	res := model.InferenceResult{
		Text:     c.fallback,
		Fallback: true,
		Reason:   reason,
		Err:      err,
		Duration: time.Since(start),
	}
	c.fallbacks.Add(1)
	c.logger.WarnContext(ctx, "inference failed, using fallback", "reason", reason, "error", err)
	if c.onFallback != nil {
		c.onFallback(res)
	}
	return res
}

func classify(callCtx context.Context, err error) string {
	var apiErr *httpclient.APIError
	switch {
	case errors.Is(err, ErrRateLimited):
		return model.ReasonRateLimited
	case errors.As(err, &apiErr) && apiErr.StatusCode == 429:
		return model.ReasonRateLimited
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return model.ReasonTimeout
	case errors.Is(err, context.Canceled) || errors.Is(callCtx.Err(), context.Canceled):
		return model.ReasonCanceled
	case errors.Is(err, ErrEmptyResponse) || apiErr != nil:
		return model.ReasonBadResponse
	default:
		return model.ReasonError
	}
}
