// Package api is the operator control surface: pause/resume, manual
// trigger, watermark inspection and reset, status and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/scheduler"
	"github.com/crimson-sun/sluice/internal/watermark"
)

// Controller is the scheduler surface the API drives.
type Controller interface {
	Pause()
	Resume()
	Paused() bool
	State() scheduler.State
	Trigger(ctx context.Context) (model.RunReport, error)
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
	Last() (model.RunReport, bool)
	Skipped() int64
	Interval() time.Duration
}

// Watermarks is the store surface the API drives.
type Watermarks interface {
	Key() string
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, t time.Time) error
	Reset(ctx context.Context) error
}

// Handler serves the control API.
type Handler struct {
	pipeline string
	ctl      Controller
	store    Watermarks
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics serves h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(a *Handler) { a.metrics = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Handler) { a.logger = l }
}

// New creates a Handler for the named pipeline.
func New(pipeline string, ctl Controller, store Watermarks, opts ...Option) *Handler {
	h := &Handler{pipeline: pipeline, ctl: ctl, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns a gin engine with recovery, request logging and all routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.health)
	r.GET("/status", h.status)
	r.POST("/pause", h.pause)
	r.POST("/resume", h.resume)
	r.POST("/trigger", h.trigger)

	wm := r.Group("/watermark")
	{
		wm.GET("", h.getWatermark)
		wm.PUT("", h.setWatermark)
		wm.DELETE("", h.resetWatermark)
	}

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("control request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Pipeline     string           `json:"pipeline"`
	State        scheduler.State  `json:"state"`
	Paused       bool             `json:"paused"`
	Interval     string           `json:"interval"`
	SkippedTicks int64            `json:"skipped_ticks"`
	LastRun      *model.RunReport `json:"last_run,omitempty"`
}

// WatermarkResponse is the body of the watermark endpoints.
type WatermarkResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type setWatermarkRequest struct {
	Value string `json:"value" binding:"required"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) status(c *gin.Context) {
	resp := StatusResponse{
		Pipeline:     h.pipeline,
		State:        h.ctl.State(),
		Paused:       h.ctl.Paused(),
		Interval:     h.ctl.Interval().String(),
		SkippedTicks: h.ctl.Skipped(),
	}
	if last, ok := h.ctl.Last(); ok {
		resp.LastRun = &last
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) pause(c *gin.Context) {
	h.ctl.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *Handler) resume(c *gin.Context) {
	h.ctl.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (h *Handler) trigger(c *gin.Context) {
	rep, err := h.ctl.Trigger(c.Request.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
	default:
		c.JSON(http.StatusOK, rep)
	}
}

func (h *Handler) getWatermark(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, WatermarkResponse{Key: h.store.Key(), Value: watermark.Format(t)})
}

// setWatermark and resetWatermark write under the scheduler's run guard, so
// no run can start between the check and the write.
func (h *Handler) setWatermark(c *gin.Context) {
	var req setWatermarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := watermark.Parse(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = h.ctl.Exclusive(c.Request.Context(), func(ctx context.Context) error {
		return h.store.Set(ctx, t)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("watermark set by operator", "key", h.store.Key(), "value", watermark.Format(t))
	c.JSON(http.StatusOK, WatermarkResponse{Key: h.store.Key(), Value: watermark.Format(t)})
}

func (h *Handler) resetWatermark(c *gin.Context) {
	if err := h.ctl.Exclusive(c.Request.Context(), h.store.Reset); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("watermark reset by operator", "key", h.store.Key())
	c.JSON(http.StatusOK, WatermarkResponse{Key: h.store.Key(), Value: watermark.Format(watermark.Epoch)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.storeError(c, err)
}

func (h *Handler) storeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, watermark.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, watermark.ErrInvalidWatermark):
		status = http.StatusUnprocessableEntity
	}
	h.logger.Warn("watermark request failed", "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
