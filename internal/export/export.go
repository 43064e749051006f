package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"naimeta/internal/config"
	"naimeta/internal/extract"
	"naimeta/internal/fileutil"
	"naimeta/internal/promptmeta"
)

// LockFileName is created in the output directory while exports are written.
const LockFileName = ".naimeta.lock"

const lockRetryDelay = 50 * time.Millisecond

// ErrLocked is returned when the output directory lock cannot be taken
// before the context ends.
var ErrLocked = errors.New("export directory is locked by another process")

// Header returns the CSV column names for slots character slots.
func Header(slots int) []string {
	if slots <= 0 {
		slots = promptmeta.DefaultSlots
	}
	cols := []string{"filename", "image_w", "image_h", "model", "base_prompt", "UC"}
	for i := 1; i <= slots; i++ {
		n := strconv.Itoa(i)
		cols = append(cols, "char"+n+"_prompt", "char"+n+"_UC")
	}
	return cols
}

// Row returns the CSV record for res. Width and height fall back to the
// image's pixel size when the metadata does not record them.
func Row(res *extract.Result, slots int) []string {
	if slots <= 0 {
		slots = promptmeta.DefaultSlots
	}
	row := []string{
		res.Filename,
		dimension(res.Width()),
		dimension(res.Height()),
		res.Fields.Model,
		res.Fields.Prompt,
		res.Fields.UC,
	}
	for i := 0; i < slots; i++ {
		var c promptmeta.Character
		if i < len(res.Fields.Characters) {
			c = res.Fields.Characters[i]
		}
		row = append(row, c.Prompt, c.UC)
	}
	return row
}

func dimension(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// WriteCSV writes the header and one row per result.
func WriteCSV(w io.Writer, results []*extract.Result, slots int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(slots)); err != nil {
		return err
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := cw.Write(Row(res, slots)); err != nil {
			return fmt.Errorf("csv row %s: %w", res.Filename, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTSV writes filename and compact generation JSON per result. The column
// holds the Comment object (or a JSON Description) when the document carries
// one, and the whole document otherwise. Results without metadata get an
// empty JSON column.
func WriteTSV(w io.Writer, results []*extract.Result) error {
	tw := csv.NewWriter(w)
	tw.Comma = '\t'
	if err := tw.Write([]string{"filename", "meta_json"}); err != nil {
		return err
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		raw, err := generationJSON(res.Metadata)
		if err != nil {
			return fmt.Errorf("tsv row %s: %w", res.Filename, err)
		}
		if err := tw.Write([]string{res.Filename, raw}); err != nil {
			return fmt.Errorf("tsv row %s: %w", res.Filename, err)
		}
	}
	tw.Flush()
	return tw.Error()
}

func generationJSON(doc map[string]any) (string, error) {
	for _, src := range []any{doc, doc[extract.TextMetadataKey]} {
		for _, key := range []string{"Comment", "Description"} {
			switch v := promptmeta.Lookup(src, key).(type) {
			case map[string]any:
				if len(v) > 0 {
					return CompactJSON(v)
				}
			case string:
				// Alpha payloads keep Comment as an encoded JSON string.
				var buf bytes.Buffer
				if s := bytes.TrimSpace([]byte(v)); len(s) > 0 && s[0] == '{' && json.Compact(&buf, s) == nil {
					return buf.String(), nil
				}
			}
		}
	}
	return CompactJSON(doc)
}

// CompactJSON renders doc on a single line without HTML escaping. A nil or
// empty document renders as "".
func CompactJSON(doc map[string]any) (string, error) {
	if len(doc) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Paths lists the files written by WriteFiles.
type Paths struct {
	CSV string
	TSV string
}

// WriteFiles writes the CSV and TSV exports for results into dir using the
// names from cfg.Export. Both files are replaced atomically under an
// exclusive lock on dir.
func WriteFiles(ctx context.Context, dir string, cfg *config.Config, results []*extract.Result) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output directory: %w", err)
	}
	out := Paths{
		CSV: filepath.Join(dir, cfg.Export.CSVName),
		TSV: filepath.Join(dir, cfg.Export.TSVName),
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Paths{}, fmt.Errorf("%w: %v", ErrLocked, ctxErr)
		}
		return Paths{}, fmt.Errorf("acquire export lock: %w", err)
	}
	if !ok {
		return Paths{}, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	slots := cfg.Export.CharSlots
	if err := fileutil.WriteAtomic(out.CSV, 0o644, func(w io.Writer) error {
		return WriteCSV(w, results, slots)
	}); err != nil {
		return Paths{}, fmt.Errorf("write csv: %w", err)
	}
	if err := fileutil.WriteAtomic(out.TSV, 0o644, func(w io.Writer) error {
		return WriteTSV(w, results)
	}); err != nil {
		return Paths{}, fmt.Errorf("write tsv: %w", err)
	}
	return out, nil
}
