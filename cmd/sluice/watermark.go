package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/sluice/internal/watermark"
)

func newWatermarkCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or correct the stored watermark",
	}

	// withStore opens only the watermark store; source and inference are not needed.
	withStore := func(fn func(cmd *cobra.Command, s *watermark.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return fn(cmd, s, args)
		}
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored watermark",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, s *watermark.Store, _ []string) error {
			t, err := s.Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Key(), watermark.Format(t))
			return nil
		}),
	}

	set := &cobra.Command{
		Use:   "set <timestamp>",
		Short: "Overwrite the stored watermark",
		Long:  "Set accepts an RFC 3339 timestamp, e.g. 2025-01-01T00:00:00Z. It may move the watermark backwards.",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *watermark.Store, args []string) error {
			t, err := watermark.Parse(args[0])
			if err != nil {
				return err
			}
			if err := s.Set(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Key(), watermark.Format(t))
			return nil
		}),
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset the watermark to the epoch so every row is reprocessed",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, s *watermark.Store, _ []string) error {
			if err := s.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Key(), watermark.Format(watermark.Epoch))
			return nil
		}),
	}

	cmd.AddCommand(get, set, reset)
	return cmd
}
