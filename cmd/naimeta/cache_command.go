package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"naimeta/internal/metacache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the extraction cache",
	}
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	return cacheCmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached extraction results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reset {
				// Reset works without opening the database so it can recover
				// from a schema mismatch.
				if err := metacache.Reset(cfg.Paths.CachePath); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted cache database %s\n", cfg.Paths.CachePath)
				return nil
			}

			store, err := metacache.Open(cfg)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer store.Close()
			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d cache entries\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the database file instead of emptying it")
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := metacache.Open(cfg)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer store.Close()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Path", store.Path()},
				{"Enabled", yesNo(cfg.Cache.Enabled)},
				{"Entries", strconv.Itoa(stats.Entries)},
				{"Without metadata", strconv.Itoa(stats.Misses)},
				{"Oldest", formatCacheTime(stats.Oldest)},
				{"Newest", formatCacheTime(stats.Newest)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Cache", "Value"}, rows, nil))
			return nil
		},
	}
}

func formatCacheTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
