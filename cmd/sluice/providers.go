package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/sluice/internal/inference"
	"github.com/crimson-sun/sluice/internal/source"
	"github.com/crimson-sun/sluice/internal/watermark"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered sources, inference providers and watermark backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source:    %s\n", strings.Join(source.Providers(), ", "))
			fmt.Fprintf(out, "inference: %s\n", strings.Join(inference.Providers(), ", "))
			fmt.Fprintf(out, "watermark: %s\n", strings.Join(watermark.Backends(), ", "))
		},
	}
}
