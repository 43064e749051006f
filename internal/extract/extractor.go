package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"naimeta/internal/config"
	"naimeta/internal/logging"
	"naimeta/internal/metacache"
	"naimeta/internal/pngtext"
	"naimeta/internal/promptmeta"
	"naimeta/internal/stealth"
)

var (
	// ErrNoMetadata marks images that carry neither an alpha payload nor text chunks.
	ErrNoMetadata = errors.New("no NovelAI metadata found")
	// ErrNotPNG marks input that does not decode as a PNG image.
	ErrNotPNG = errors.New("not a PNG image")
)

// TextMetadataKey holds the text-chunk document when an alpha payload was also found.
const TextMetadataKey = "text_metadata"

// Source names the carrier that supplied a result's metadata.
type Source string

const (
	SourceNone      Source = ""
	SourceAlpha     Source = "alpha"
	SourceText      Source = "text"
	SourceAlphaText Source = "alpha+text"
)

// Result is the outcome of extracting one image.
type Result struct {
	Path        string            `json:"path,omitempty"`
	Filename    string            `json:"filename"`
	Source      Source            `json:"source"`
	ImageWidth  int               `json:"image_width"`
	ImageHeight int               `json:"image_height"`
	NovelAIName bool              `json:"novelai_name"`
	Cached      bool              `json:"cached"`
	Metadata    map[string]any    `json:"-"`
	Fields      promptmeta.Fields `json:"fields"`
}

// HasMetadata reports whether any carrier produced a document.
func (r *Result) HasMetadata() bool {
	return r != nil && len(r.Metadata) > 0
}

// Width is the generation width from the metadata, or the pixel width when
// the metadata does not record one.
func (r *Result) Width() int {
	if r.Fields.Width > 0 {
		return r.Fields.Width
	}
	return r.ImageWidth
}

// Height mirrors Width.
func (r *Result) Height() int {
	if r.Fields.Height > 0 {
		return r.Fields.Height
	}
	return r.ImageHeight
}

// Options configures an Extractor.
type Options struct {
	Order     stealth.Order
	CharSlots int
	Logger    *slog.Logger
	// Cache is optional; when nil every file is decoded.
	Cache *metacache.Store
}

// Extractor decodes images. It is safe for concurrent use.
type Extractor struct {
	order  stealth.Order
	slots  int
	logger *slog.Logger
	cache  *metacache.Store
}

// New builds an Extractor from opts.
func New(opts Options) *Extractor {
	slots := opts.CharSlots
	if slots <= 0 {
		slots = promptmeta.DefaultSlots
	}
	return &Extractor{
		order:  opts.Order,
		slots:  slots,
		logger: logging.NewComponentLogger(opts.Logger, "extract"),
		cache:  opts.Cache,
	}
}

// NewFromConfig builds an Extractor using scan and export settings from cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, cache *metacache.Store) *Extractor {
	return New(Options{
		Order:     cfg.PixelOrder(),
		CharSlots: cfg.Export.CharSlots,
		Logger:    logger,
		Cache:     cache,
	})
}

// ExtractFile extracts the image at path. When the image has no metadata the
// partial result (dimensions, filename) is returned together with
// ErrNoMetadata.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := e.logger.With(logging.String(logging.FieldPath, path))

	var key metacache.Key
	if e.cache != nil {
		var err error
		key, err = metacache.KeyFor(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		key.PixelOrder = e.order.String()
		if entry, ok, err := e.cache.Lookup(ctx, key); err != nil {
			logging.WarnWithContext(logger, "cache lookup failed", "metacache_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "image will be decoded again"))
		} else if ok {
			res, err := e.fromCache(path, entry)
			if err == nil || errors.Is(err, ErrNoMetadata) {
				logger.Debug("cache hit", logging.String("source", string(res.Source)))
				return res, err
			}
			logger.Debug("discarding unreadable cache entry", logging.Error(err))
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := e.extract(ctx, logger, filepath.Base(path), data)
	if res != nil {
		res.Path = path
	}
	if e.cache != nil && (err == nil || errors.Is(err, ErrNoMetadata)) {
		e.store(ctx, logger, key, res)
	}
	return res, err
}

// ExtractBytes extracts an in-memory PNG. name is used for the result's
// filename and UUID detection only.
func (e *Extractor) ExtractBytes(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, e.logger)
	if name != "" {
		logger = logger.With(logging.String(logging.FieldPath, name))
	}
	return e.extract(ctx, logger, name, data)
}

func (e *Extractor) extract(ctx context.Context, logger *slog.Logger, name string, data []byte) (*Result, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	res := &Result{
		Filename:    name,
		ImageWidth:  bounds.Dx(),
		ImageHeight: bounds.Dy(),
		NovelAIName: IsNovelAIName(name),
	}

	alpha := e.decodeAlpha(logger, img)
	text := decodeText(logger, data)

	switch {
	case len(alpha) > 0 && len(text) > 0:
		alpha[TextMetadataKey] = text
		res.Metadata, res.Source = alpha, SourceAlphaText
	case len(alpha) > 0:
		res.Metadata, res.Source = alpha, SourceAlpha
	case len(text) > 0:
		res.Metadata, res.Source = text, SourceText
	default:
		res.Fields = promptmeta.Resolve(nil, e.slots)
		logger.Debug("no metadata found")
		return res, ErrNoMetadata
	}
	res.Fields = promptmeta.Resolve(res.Metadata, e.slots)
	logger.Debug("metadata extracted", logging.String("source", string(res.Source)))
	return res, nil
}

func (e *Extractor) decodeAlpha(logger *slog.Logger, img image.Image) map[string]any {
	grid, err := stealth.GridFromImage(img)
	if err != nil {
		logger.Debug("alpha plane unavailable", logging.Error(err))
		return nil
	}
	doc, err := stealth.DecodeWithOrder(grid, e.order)
	switch {
	case err == nil:
	case stealth.IsNotPresent(err):
		logger.Debug("no stealth payload",
			logging.String("reason", stealth.KindOf(err).String()))
		return nil
	default:
		logging.WarnWithContext(logger, "stealth payload is corrupt", "stealth_payload_corrupt",
			logging.String("kind", stealth.KindOf(err).String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "falling back to text chunks"))
		return nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		logging.WarnWithContext(logger, "stealth payload is not an object", "stealth_payload_not_object",
			logging.String("type", fmt.Sprintf("%T", doc)),
			logging.String(logging.FieldImpact, "falling back to text chunks"))
		return nil
	}
	return m
}

func decodeText(logger *slog.Logger, data []byte) map[string]any {
	chunks, err := pngtext.ReadBytes(data)
	if err != nil {
		// Entries read before the failure are still usable.
		logger.Debug("text chunk read stopped early", logging.Error(err),
			logging.Int("entries", len(chunks)))
	}
	return pngtext.Metadata(chunks)
}

func (e *Extractor) store(ctx context.Context, logger *slog.Logger, key metacache.Key, res *Result) {
	if res == nil {
		return
	}
	entry := metacache.Entry{
		Key:         key,
		Source:      string(res.Source),
		ImageWidth:  res.ImageWidth,
		ImageHeight: res.ImageHeight,
	}
	if res.HasMetadata() {
		raw, err := json.Marshal(res.Metadata)
		if err != nil {
			logger.Debug("metadata not cacheable", logging.Error(err))
			return
		}
		entry.Metadata = raw
	} else {
		entry.ErrorMessage = ErrNoMetadata.Error()
	}
	if err := e.cache.Put(ctx, entry); err != nil {
		logging.WarnWithContext(logger, "cache store failed", "metacache_store_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next scan decodes this image again"))
	}
}

func (e *Extractor) fromCache(path string, entry metacache.Entry) (*Result, error) {
	res := &Result{
		Path:        path,
		Filename:    filepath.Base(path),
		Source:      Source(entry.Source),
		ImageWidth:  entry.ImageWidth,
		ImageHeight: entry.ImageHeight,
		NovelAIName: IsNovelAIName(path),
		Cached:      true,
	}
	if entry.Metadata == nil {
		res.Fields = promptmeta.Resolve(nil, e.slots)
		return res, ErrNoMetadata
	}
	doc, err := decodeDocument(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("cached metadata for %s: %w", path, err)
	}
	res.Metadata = doc
	res.Fields = promptmeta.Resolve(doc, e.slots)
	return res, nil
}

func decodeDocument(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after cached document")
	}
	return doc, nil
}

// IsNovelAIName reports whether the base name of path is a UUID followed by
// ".png", the naming NovelAI uses for downloaded generations.
func IsNovelAIName(path string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".png") {
		return false
	}
	stem := strings.TrimSuffix(base, ext)
	if len(stem) != 36 {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}
