package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/sluice/internal/config"
	"github.com/crimson-sun/sluice/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "sluice",
		Short: "Scheduled incremental extraction into an inference service",
		Long: `sluice periodically reads rows newer than a stored watermark from a
table, sends them to an inference service, and advances the watermark.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (env SLUICE_* overrides it)")

	load := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		logging.Init(cfg.Log.Format, cfg.Log.Level)
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newRunCmd(load),
		newWatermarkCmd(load),
		newProvidersCmd(),
	)
	return root
}

type loader func() (config.Config, error)
