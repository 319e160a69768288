package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/sluice/internal/api"
	"github.com/crimson-sun/sluice/internal/config"
	"github.com/crimson-sun/sluice/internal/scheduler"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on its schedule and serve the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := slog.Default()

			a, err := build(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close failed", "error", err)
				}
			}()

			sched := scheduler.New(a.pipeline, cfg.Schedule.Interval.Duration(),
				scheduler.WithRunOnStart(cfg.Schedule.RunOnStart),
				scheduler.WithMetrics(a.metrics),
				scheduler.WithLogger(logger),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("sluice starting",
				"version", config.Version,
				"pipeline", a.pipeline.Name(),
				"source", cfg.Source.Provider,
				"inference", cfg.Inference.Provider,
				"watermark", cfg.Watermark.Backend,
				"interval", cfg.Schedule.Interval.Duration(),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Start(gctx) })

			if cfg.Control.Addr != "" {
				gin.SetMode(gin.ReleaseMode)
				h := api.New(a.pipeline.Name(), sched, a.store,
					api.WithMetrics(a.metrics.Handler()),
					api.WithLogger(logger),
				)
				srv := &http.Server{Addr: cfg.Control.Addr, Handler: h.Router()}

				g.Go(func() error {
					logger.Info("control API listening", "addr", cfg.Control.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("control API: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Schedule.ShutdownTimeout.Duration())
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			err = g.Wait()
			logger.Info("sluice stopped", "runs_skipped", sched.Skipped())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
