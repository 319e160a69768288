package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/sluice/internal/model"
)

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and exit",
		Long: `Run performs one manual run: extract rows newer than the watermark,
send them for inference, advance the watermark, and write the run report
to the configured sinks. It exits non-zero if the run failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := build(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			_, err = a.pipeline.Run(cmd.Context(), model.TriggerManual)
			return err
		},
	}
}
