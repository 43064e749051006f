package stealth

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Cursor reads forward over a byte buffer. A read that asks for more bytes
// than remain fails with io.ErrUnexpectedEOF and leaves the position unchanged.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Pos() int { return c.pos }

func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Next returns the next n bytes. The slice aliases the cursor's buffer.
func (c *Cursor) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("stealth: negative read length %d", n)
	}
	if n > c.Remaining() {
		return nil, fmt.Errorf("want %d bytes at offset %d, have %d: %w", n, c.pos, c.Remaining(), io.ErrUnexpectedEOF)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Uint32 reads a big-endian unsigned 32-bit integer.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
