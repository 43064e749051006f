package pngtext

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"
)

// Insert returns a copy of the encoded PNG with the entries added as text
// chunks directly after IHDR. An entry's Chunk selects tEXt, zTXt or iTXt;
// when empty, tEXt is used if the text is representable in Latin-1 and iTXt
// otherwise.
func Insert(png []byte, entries ...Entry) ([]byte, error) {
	if len(png) < len(Signature) || string(png[:len(Signature)]) != Signature {
		return nil, ErrNotPNG
	}
	// IHDR is always the first chunk: 8 header bytes, 13 data bytes, 4 crc.
	ihdrEnd := len(Signature) + 8 + 13 + 4
	if len(png) < ihdrEnd || string(png[len(Signature)+4:len(Signature)+8]) != "IHDR" {
		return nil, fmt.Errorf("%w: missing IHDR", ErrNotPNG)
	}

	var chunks bytes.Buffer
	for _, e := range entries {
		typ, data, err := encodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("pngtext: encode %q: %w", e.Keyword, err)
		}
		writeChunk(&chunks, typ, data)
	}

	out := make([]byte, 0, len(png)+chunks.Len())
	out = append(out, png[:ihdrEnd]...)
	out = append(out, chunks.Bytes()...)
	return append(out, png[ihdrEnd:]...), nil
}

func encodeEntry(e Entry) (string, []byte, error) {
	if e.Keyword == "" || len(e.Keyword) > 79 {
		return "", nil, fmt.Errorf("invalid keyword length %d", len(e.Keyword))
	}
	keyword, err := charmap.ISO8859_1.NewEncoder().String(e.Keyword)
	if err != nil {
		return "", nil, errors.New("keyword is not representable in Latin-1")
	}

	typ := e.Chunk
	latinText, latinErr := charmap.ISO8859_1.NewEncoder().String(e.Text)
	if typ == "" {
		typ = "tEXt"
		if latinErr != nil {
			typ = "iTXt"
		}
	}

	var buf bytes.Buffer
	buf.WriteString(keyword)
	buf.WriteByte(0)
	switch typ {
	case "tEXt":
		if latinErr != nil {
			return "", nil, errors.New("text is not representable in Latin-1")
		}
		buf.WriteString(latinText)
	case "zTXt":
		if latinErr != nil {
			return "", nil, errors.New("text is not representable in Latin-1")
		}
		buf.WriteByte(0)
		if err := deflate(&buf, []byte(latinText)); err != nil {
			return "", nil, err
		}
	case "iTXt":
		buf.WriteByte(0) // uncompressed
		buf.WriteByte(0)
		buf.WriteString(e.Language)
		buf.WriteByte(0)
		buf.WriteString(e.TranslatedKeyword)
		buf.WriteByte(0)
		buf.WriteString(e.Text)
	default:
		return "", nil, fmt.Errorf("unsupported chunk type %q", typ)
	}
	return typ, buf.Bytes(), nil
}

func deflate(buf *bytes.Buffer, data []byte) error {
	zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])

	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	buf.WriteString(typ)
	buf.Write(data)

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}
