package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"naimeta/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, cache and listen address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Pixel order", statusInfo, cfg.PixelOrder().String(), colorize))
			if cfg.Cache.Enabled {
				fmt.Fprintln(out, renderStatusLine("Cache", statusInfo, "enabled", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Cache", statusWarn, "disabled, scans decode every file", colorize))
			}
			apiToken := "not set"
			if cfg.Server.APIToken != "" {
				apiToken = "set"
			}
			fmt.Fprintln(out, renderStatusLine("API token", statusInfo, apiToken, colorize))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}
