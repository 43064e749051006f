package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"naimeta/internal/pngtext"
	"naimeta/internal/stealth"
)

// Image returns an opaque w x h NRGBA image filled with a simple gradient.
func Image(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x + y), A: 0xFF})
		}
	}
	return img
}

// StealthPNG encodes doc into the alpha plane of a w x h image and returns the
// PNG bytes. Optional text entries are written as text chunks.
func StealthPNG(t testing.TB, doc any, w, h int, order stealth.Order, text ...pngtext.Entry) []byte {
	t.Helper()

	img := Image(w, h)
	grid, err := stealth.GridFromImage(img)
	if err != nil {
		t.Fatalf("GridFromImage: %v", err)
	}
	if err := stealth.EncodeWithOrder(grid, doc, order); err != nil {
		t.Fatalf("EncodeWithOrder: %v", err)
	}
	return EncodePNG(t, img, text...)
}

// EncodePNG encodes img and inserts any text entries.
func EncodePNG(t testing.TB, img image.Image, text ...pngtext.Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if len(text) == 0 {
		return buf.Bytes()
	}
	data, err := pngtext.Insert(buf.Bytes(), text...)
	if err != nil {
		t.Fatalf("pngtext.Insert: %v", err)
	}
	return data
}

// WritePNG writes data to dir/name and returns the full path.
func WritePNG(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFile fills path with size bytes of filler. A size <= 0 writes a single
// byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	WritePNG(t, filepath.Dir(path), filepath.Base(path), bytes.Repeat([]byte{0x42}, int(size)))
}
