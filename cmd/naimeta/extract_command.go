package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"naimeta/internal/extract"
)

type extractEntry struct {
	File     string          `json:"file"`
	Result   *extract.Result `json:"result,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var raw bool
	var noCache bool
	var order string

	cmd := &cobra.Command{
		Use:   "extract <png>...",
		Short: "Print the metadata embedded in PNG files as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			entries := make([]extractEntry, 0, len(args))
			failed := 0
			for _, path := range args {
				entry := extractEntry{File: path}
				res, err := ex.ExtractFile(cmd.Context(), path)
				switch {
				case err != nil:
					entry.Error = err.Error()
					failed++
				case raw:
					entry.Metadata = res.Metadata
				default:
					entry.Result = res
				}
				entries = append(entries, entry)
			}

			if err := writeJSON(cmd, entries); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files had no readable metadata", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the decoded metadata documents")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the extraction cache")
	cmd.Flags().StringVar(&order, "order", "", "Alpha bit order: row or column (default from config)")
	return cmd
}
