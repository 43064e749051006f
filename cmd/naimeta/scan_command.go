package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"naimeta/internal/export"
	"naimeta/internal/extract"
	"naimeta/internal/preflight"
)

// maxListedMisses caps the miss list printed after a scan.
const maxListedMisses = 5

func newScanCommand(ctx *commandContext) *cobra.Command {
	var noCache bool
	var recursive bool
	var workers int
	var outputDir string
	var order string

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Extract metadata from every PNG in a directory and export CSV/TSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			dir, err = filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve scan directory: %w", err)
			}
			if check := preflight.CheckReadableDirectory("Scan directory", dir); !check.Passed {
				return errors.New(check.Detail)
			}

			opts := extract.ScanOptionsFromConfig(cfg)
			if cmd.Flags().Changed("recursive") {
				opts.Recursive = recursive
			}
			if workers > 0 {
				opts.Workers = workers
			}

			cache, err := ctx.openCache(noCache)
			if err != nil {
				return err
			}
			if cache != nil {
				defer cache.Close()
			}
			ex, err := ctx.newExtractor(order, cache)
			if err != nil {
				return err
			}

			report, err := ex.Scan(cmd.Context(), dir, opts)
			if err != nil {
				return err
			}

			target := cfg.OutputDirFor(dir)
			if strings.TrimSpace(outputDir) != "" {
				target, err = filepath.Abs(outputDir)
				if err != nil {
					return fmt.Errorf("resolve output directory: %w", err)
				}
			}
			paths, err := export.WriteFiles(cmd.Context(), target, cfg, report.Results)
			if err != nil {
				return err
			}

			printScanSummary(cmd, report, paths)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the extraction cache")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent decoders (default from config)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for the CSV and TSV exports (default: scanned directory)")
	cmd.Flags().StringVar(&order, "order", "", "Alpha bit order: row or column (default from config)")
	return cmd
}

func printScanSummary(cmd *cobra.Command, report *extract.Report, paths export.Paths) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Files", strconv.Itoa(report.Files)},
		{"With metadata", strconv.Itoa(report.Extracted())},
		{"Without metadata", strconv.Itoa(len(report.Misses))},
		{"Failed", strconv.Itoa(len(report.Failures))},
		{"From cache", strconv.Itoa(report.Cached)},
		{"Pruned cache entries", strconv.Itoa(report.Pruned)},
		{"Elapsed", report.Elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintf(out, "Scanned %s\n", report.Dir)
	fmt.Fprintln(out, renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(out, "CSV: %s\n", paths.CSV)
	fmt.Fprintf(out, "TSV: %s\n", paths.TSV)

	if len(report.Misses) > 0 {
		fmt.Fprintln(out, "No metadata found in:")
		for i, miss := range report.Misses {
			if i == maxListedMisses {
				fmt.Fprintf(out, "  ... and %d more\n", len(report.Misses)-maxListedMisses)
				break
			}
			fmt.Fprintf(out, "  %s\n", relativeTo(report.Dir, miss))
		}
	}
	for _, f := range report.Failures {
		fmt.Fprintf(out, "Failed: %s: %v\n", relativeTo(report.Dir, f.Path), f.Err)
	}
}

func relativeTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
