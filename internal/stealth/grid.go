package stealth

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// Grid is a row-major, non-premultiplied RGBA pixel buffer with four bytes per
// pixel. The alpha byte of pixel i lives at Pix()[4*i+3].
type Grid struct {
	width  int
	height int
	pix    []byte
}

// NewGrid allocates a fully transparent width x height grid.
func NewGrid(width, height int) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("stealth: invalid grid size %dx%d", width, height)
	}
	return &Grid{width: width, height: height, pix: make([]byte, 4*width*height)}, nil
}

// GridFromPix wraps an existing RGBA buffer without copying it.
func GridFromPix(width, height int, pix []byte) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("stealth: invalid grid size %dx%d", width, height)
	}
	if len(pix) != 4*width*height {
		return nil, fmt.Errorf("stealth: pixel buffer has %d bytes, want %d", len(pix), 4*width*height)
	}
	return &Grid{width: width, height: height, pix: pix}, nil
}

// GridFromImage converts img to a Grid. A tightly packed *image.NRGBA anchored
// at the origin is wrapped in place, so embedding into the grid rewrites the
// image; any other image is copied into a fresh non-premultiplied buffer.
func GridFromImage(img image.Image) (*Grid, error) {
	if img == nil {
		return nil, errors.New("stealth: nil image")
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("stealth: empty image bounds %v", b)
	}
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return GridFromPix(b.Dx(), b.Dy(), n.Pix[:4*b.Dx()*b.Dy()])
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return GridFromPix(b.Dx(), b.Dy(), dst.Pix)
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// Pix exposes the underlying buffer.
func (g *Grid) Pix() []byte { return g.pix }

// Pixels returns Width*Height.
func (g *Grid) Pixels() int { return g.width * g.height }

// Image returns an *image.NRGBA sharing the grid's buffer.
func (g *Grid) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    g.pix,
		Stride: 4 * g.width,
		Rect:   image.Rect(0, 0, g.width, g.height),
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	pix := make([]byte, len(g.pix))
	copy(pix, g.pix)
	return &Grid{width: g.width, height: g.height, pix: pix}
}
