package stealth

import (
	"fmt"
	"strings"
)

// Order selects how pixels are walked when flattening the alpha plane.
type Order int

const (
	// RowMajor visits pixels left to right, then top to bottom.
	RowMajor Order = iota
	// ColumnMajor visits pixels top to bottom, then left to right. This is the
	// traversal produced by transposing the alpha plane before flattening it.
	ColumnMajor
)

func (o Order) String() string {
	switch o {
	case RowMajor:
		return "row"
	case ColumnMajor:
		return "column"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseOrder accepts "row"/"row-major" and "column"/"column-major".
func ParseOrder(value string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "row", "row-major", "rows":
		return RowMajor, nil
	case "column", "column-major", "col", "columns":
		return ColumnMajor, nil
	default:
		return RowMajor, fmt.Errorf("stealth: unknown pixel order %q", value)
	}
}

// Capacity returns how many whole bytes the alpha LSB plane of g can carry.
func Capacity(g *Grid) int {
	if g == nil {
		return 0
	}
	return g.Pixels() / 8
}

// alphaOffset maps logical bit position i to the alpha byte that carries it.
func (g *Grid) alphaOffset(i int, order Order) int {
	if order == ColumnMajor {
		x, y := i/g.height, i%g.height
		return 4*(y*g.width+x) + 3
	}
	return 4*i + 3
}

// ExtractBits packs the alpha LSB of every pixel, in row-major order, into
// bytes MSB-first. Trailing pixels that do not fill a whole byte are ignored.
func ExtractBits(g *Grid) []byte {
	return ExtractBitsWithOrder(g, RowMajor)
}

// ExtractBitsWithOrder is ExtractBits with an explicit pixel traversal.
func ExtractBitsWithOrder(g *Grid, order Order) []byte {
	n := Capacity(g)
	out := make([]byte, n)
	for i := 0; i < n*8; i++ {
		if g.pix[g.alphaOffset(i, order)]&1 != 0 {
			out[i>>3] |= 0x80 >> uint(i&7)
		}
	}
	return out
}

// EmbedBits writes data into the alpha LSB plane of g, MSB-first, in
// row-major order. Only bit 0 of each touched alpha byte changes; colour
// channels and pixels past the payload are left alone.
func EmbedBits(g *Grid, data []byte) error {
	return EmbedBitsWithOrder(g, data, RowMajor)
}

// EmbedBitsWithOrder is EmbedBits with an explicit pixel traversal.
func EmbedBitsWithOrder(g *Grid, data []byte, order Order) error {
	if capacity := Capacity(g); len(data) > capacity {
		return newError(KindInsufficientCapacity,
			fmt.Errorf("need %d bits, grid holds %d", 8*len(data), 8*capacity))
	}
	for i := 0; i < len(data)*8; i++ {
		bit := (data[i>>3] >> uint(7-(i&7))) & 1
		off := g.alphaOffset(i, order)
		g.pix[off] = g.pix[off]&^1 | bit
	}
	return nil
}
