package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"naimeta/internal/extract"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "show <png>",
		Short: "Display the resolved prompt fields of a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(false)
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
			res, err := ex.ExtractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFields(resultPairs(res)))
			return nil
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "Alpha bit order: row or column (default from config)")
	return cmd
}

func resultPairs(res *extract.Result) [][2]string {
	f := res.Fields
	pairs := [][2]string{
		{"File", res.Filename},
		{"Source", string(res.Source)},
		{"Size", fmt.Sprintf("%dx%d", res.Width(), res.Height())},
		{"NovelAI filename", yesNo(res.NovelAIName)},
		{"Cached", yesNo(res.Cached)},
		{"Model", f.Model},
		{"Prompt", f.Prompt},
		{"UC", f.UC},
	}
	for i, c := range f.Characters {
		n := strconv.Itoa(i + 1)
		pairs = append(pairs,
			[2]string{"Char " + n + " prompt", c.Prompt},
			[2]string{"Char " + n + " UC", c.UC},
		)
	}
	return pairs
}
