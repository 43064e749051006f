package stealth

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Build serializes doc into a complete payload stream: magic, bit length and
// gzip-compressed JSON body. Map keys are emitted in sorted order.
func Build(doc any) ([]byte, error) {
	var text bytes.Buffer
	enc := json.NewEncoder(&text)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("stealth: marshal document: %w", err)
	}
	raw := bytes.TrimSuffix(text.Bytes(), []byte("\n"))

	body, err := compress(raw)
	if err != nil {
		return nil, err
	}

	bits := uint64(len(body)) * 8
	if bits > math.MaxUint32 {
		return nil, newError(KindPayloadTooLarge,
			fmt.Errorf("body of %d bytes exceeds the 32-bit bit length", len(body)))
	}

	var out bytes.Buffer
	out.Grow(HeaderSize + len(body))
	if err := writeHeader(&out, uint32(bits)); err != nil {
		return nil, err
	}
	out.Write(body)
	return out.Bytes(), nil
}

// Encode builds the payload for doc and embeds it into g in row-major order.
func Encode(g *Grid, doc any) error {
	return EncodeWithOrder(g, doc, RowMajor)
}

// EncodeWithOrder is Encode with an explicit pixel traversal.
func EncodeWithOrder(g *Grid, doc any, order Order) error {
	payload, err := Build(doc)
	if err != nil {
		return err
	}
	return EmbedBitsWithOrder(g, payload, order)
}

// RequiredPixels returns the number of pixels needed to carry doc.
func RequiredPixels(doc any) (int, error) {
	payload, err := Build(doc)
	if err != nil {
		return 0, err
	}
	return 8 * len(payload), nil
}

func writeHeader(b *bytes.Buffer, bits uint32) error {
	if _, err := b.WriteString(Magic); err != nil {
		return err
	}
	return binary.Write(b, binary.BigEndian, bits)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("stealth: gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("stealth: compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("stealth: compress body: %w", err)
	}
	return buf.Bytes(), nil
}
