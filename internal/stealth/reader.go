package stealth

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	// Magic prefixes every stealth payload.
	Magic = "stealth_pngcomp"

	// HeaderSize is the magic plus the 32-bit length field.
	HeaderSize = len(Magic) + 4

	// CommentKey names the field whose string value may hold nested JSON.
	CommentKey = "Comment"
)

// Decode extracts and parses the payload carried by g in row-major order.
func Decode(g *Grid) (any, error) {
	return Parse(ExtractBits(g))
}

// DecodeWithOrder is Decode with an explicit pixel traversal.
func DecodeWithOrder(g *Grid, order Order) (any, error) {
	return Parse(ExtractBitsWithOrder(g, order))
}

// Parse decodes a packed bit-plane stream. The declared length is a bit count;
// it is divided by eight and any remainder bits are dropped. The result is the
// decoded JSON value, which is normally a map[string]any; numbers decode as
// json.Number so integer fields survive untouched.
func Parse(stream []byte) (any, error) {
	cur := NewCursor(stream)

	magic, err := cur.Next(len(Magic))
	if err != nil {
		return nil, newError(KindTruncatedHeader, err)
	}
	if string(magic) != Magic {
		return nil, newError(KindMagicMismatch, nil)
	}

	bits, err := cur.Uint32()
	if err != nil {
		return nil, newError(KindTruncatedHeader, err)
	}
	size := int(bits / 8)
	if size > cur.Remaining() {
		return nil, newError(KindPayloadTooLarge,
			fmt.Errorf("declared %d bytes, stream has %d", size, cur.Remaining()))
	}

	body, err := cur.Next(size)
	if err != nil {
		return nil, newError(KindTruncatedBody, err)
	}
	return decodeBody(body)
}

// ParseReader decodes a payload from a stream whose length is not known up
// front. A stream that ends inside the body yields KindTruncatedBody.
func ParseReader(r io.Reader) (any, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header[:len(Magic)]); err != nil {
		return nil, newError(KindTruncatedHeader, err)
	}
	if string(header[:len(Magic)]) != Magic {
		return nil, newError(KindMagicMismatch, nil)
	}
	if _, err := io.ReadFull(r, header[len(Magic):]); err != nil {
		return nil, newError(KindTruncatedHeader, err)
	}
	size := int64(binary.BigEndian.Uint32(header[len(Magic):]) / 8)

	body, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, newError(KindTruncatedBody, err)
	}
	if int64(len(body)) < size {
		return nil, newError(KindTruncatedBody,
			fmt.Errorf("declared %d bytes, read %d: %w", size, len(body), io.ErrUnexpectedEOF))
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (any, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindDecompression, err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return nil, newError(KindDecompression, err)
	}

	if !utf8.Valid(text) {
		return nil, newError(KindEncoding, errors.New("decompressed payload is not valid utf-8"))
	}

	doc, err := unmarshalJSON(text)
	if err != nil {
		return nil, newError(KindMalformedJSON, err)
	}
	return unwrapComment(doc), nil
}

// unwrapComment replaces a string Comment with its parsed JSON value when the
// string is valid JSON. Unparseable strings are kept as they are.
func unwrapComment(doc any) any {
	m, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	s, ok := m[CommentKey].(string)
	if !ok {
		return doc
	}
	if nested, err := unmarshalJSON([]byte(s)); err == nil {
		m[CommentKey] = nested
	}
	return doc
}

// unmarshalJSON decodes exactly one JSON value and rejects trailing data.
func unmarshalJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}
