package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/spf13/cobra"

	"naimeta/internal/export"
	"naimeta/internal/fileutil"
	"naimeta/internal/logging"
	"naimeta/internal/pngtext"
	"naimeta/internal/stealth"
)

func newEmbedCommand(ctx *commandContext) *cobra.Command {
	var order string
	var withText bool

	cmd := &cobra.Command{
		Use:   "embed <in.png> <meta.json> <out.png>",
		Short: "Write a metadata document into the alpha channel of a PNG",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			inPath, metaPath, outPath := args[0], args[1], args[2]

			pixelOrder := cfg.PixelOrder()
			if order != "" {
				if pixelOrder, err = stealth.ParseOrder(order); err != nil {
					return err
				}
			}

			doc, err := readDocument(metaPath)
			if err != nil {
				return err
			}

			src, err := os.Open(inPath)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			img, err := png.Decode(src)
			src.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", inPath, err)
			}
			grid, err := stealth.GridFromImage(img)
			if err != nil {
				return err
			}

			payload, err := stealth.Build(doc)
			if err != nil {
				return err
			}
			need := 8 * len(payload)
			if need > grid.Pixels() {
				return fmt.Errorf("metadata needs %d pixels but %s has %d (%dx%d)",
					need, inPath, grid.Pixels(), grid.Width(), grid.Height())
			}
			if err := stealth.EmbedBitsWithOrder(grid, payload, pixelOrder); err != nil {
				return fmt.Errorf("embed metadata: %w", err)
			}

			var buf bytes.Buffer
			if err := png.Encode(&buf, grid.Image()); err != nil {
				return fmt.Errorf("encode png: %w", err)
			}
			data := buf.Bytes()
			if withText {
				comment, err := export.CompactJSON(doc)
				if err != nil {
					return err
				}
				data, err = pngtext.Insert(data, pngtext.Entry{Keyword: "Comment", Text: comment})
				if err != nil {
					return err
				}
			}
			if err := fileutil.WriteFileAtomic(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			sum, err := fileutil.Checksum(outPath)
			if err != nil {
				return err
			}

			logger.Info("metadata embedded",
				logging.String(logging.FieldPath, outPath),
				logging.String("input", inPath),
				logging.String("order", pixelOrder.String()),
				logging.Int("pixels_used", need))
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d of %d pixels, sha256 %s)\n",
				outPath, need, grid.Pixels(), sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "Alpha bit order: row or column (default from config)")
	cmd.Flags().BoolVar(&withText, "text", false, "Also store the document in a Comment text chunk")
	return cmd
}

// readDocument loads a JSON object, keeping numbers in their original
// textual form.
func readDocument(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: unexpected data after the document", path)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse %s: expected a JSON object", path)
	}
	return doc, nil
}
