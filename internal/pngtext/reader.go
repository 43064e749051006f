package pngtext

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"
)

// Signature is the eight-byte PNG file signature.
const Signature = "\x89PNG\r\n\x1a\n"

const (
	// maxChunkLength is the PNG limit of 2^31-1 bytes per chunk.
	maxChunkLength = 1<<31 - 1
	// maxTextLength bounds the text pulled out of a single chunk, after
	// decompression.
	maxTextLength = 16 << 20
)

var (
	ErrNotPNG = errors.New("pngtext: not a PNG stream")
	ErrBadCRC = errors.New("pngtext: chunk crc mismatch")
)

// Entry is one decoded text chunk.
type Entry struct {
	Chunk   string // tEXt, zTXt or iTXt
	Keyword string
	Text    string
	// Language and TranslatedKeyword are only set for iTXt.
	Language          string
	TranslatedKeyword string
}

// Chunks lists text entries in file order.
type Chunks []Entry

// Get returns the text of the last entry with the given keyword, matching the
// way decoders that store chunks in a map resolve duplicates.
func (c Chunks) Get(keyword string) (string, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Keyword == keyword {
			return c[i].Text, true
		}
	}
	return "", false
}

// Keywords returns each distinct keyword once, in order of first appearance.
func (c Chunks) Keywords() []string {
	seen := make(map[string]struct{}, len(c))
	out := make([]string, 0, len(c))
	for _, e := range c {
		if _, ok := seen[e.Keyword]; ok {
			continue
		}
		seen[e.Keyword] = struct{}{}
		out = append(out, e.Keyword)
	}
	return out
}

// ReadBytes is Read over an in-memory PNG.
func ReadBytes(data []byte) (Chunks, error) {
	return Read(bytes.NewReader(data))
}

// Read collects the text chunks of the PNG stream r, stopping at IEND. Entries
// read before an error are returned alongside it.
func Read(r io.Reader) (Chunks, error) {
	br := bufio.NewReader(r)
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}
	if string(sig) != Signature {
		return nil, ErrNotPNG
	}

	var out Chunks
	crc := crc32.NewIEEE()
	var header [8]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return out, fmt.Errorf("pngtext: read chunk header: %w", unexpected(err))
		}
		length := binary.BigEndian.Uint32(header[:4])
		typ := string(header[4:8])
		if length > maxChunkLength {
			return out, fmt.Errorf("pngtext: chunk %q length %d exceeds limit", typ, length)
		}

		crc.Reset()
		crc.Write(header[4:8])
		data, err := readChunkData(br, crc, typ, int64(length))
		if err != nil {
			return out, fmt.Errorf("pngtext: read %s: %w", typ, unexpected(err))
		}
		if err := checkCRC(br, crc, typ); err != nil {
			return out, err
		}

		switch typ {
		case "tEXt", "zTXt", "iTXt":
			entry, err := parseText(typ, data)
			if err != nil {
				return out, fmt.Errorf("pngtext: %s: %w", typ, err)
			}
			out = append(out, entry)
		case "IEND":
			return out, nil
		}
	}
}

// readChunkData feeds the chunk body through crc. Only text chunk bodies are
// retained; everything else is discarded after hashing.
func readChunkData(r io.Reader, crc hash.Hash32, typ string, length int64) ([]byte, error) {
	switch typ {
	case "tEXt", "zTXt", "iTXt":
		if length > maxTextLength {
			return nil, fmt.Errorf("text chunk of %d bytes exceeds limit", length)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		crc.Write(data)
		return data, nil
	default:
		n, err := io.CopyN(crc, r, length)
		if err != nil && n < length {
			return nil, err
		}
		return nil, nil
	}
}

func checkCRC(r io.Reader, crc hash.Hash32, typ string) error {
	var sum [4]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return fmt.Errorf("pngtext: read %s crc: %w", typ, unexpected(err))
	}
	if got, want := crc.Sum32(), binary.BigEndian.Uint32(sum[:]); got != want {
		return fmt.Errorf("%w: %s chunk has %08x, computed %08x", ErrBadCRC, typ, want, got)
	}
	return nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func parseText(typ string, data []byte) (Entry, error) {
	keyword, rest, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return Entry{}, errors.New("missing keyword terminator")
	}
	if len(keyword) == 0 || len(keyword) > 79 {
		return Entry{}, fmt.Errorf("invalid keyword length %d", len(keyword))
	}
	entry := Entry{Chunk: typ, Keyword: latin1(keyword)}

	switch typ {
	case "tEXt":
		entry.Text = latin1(rest)
	case "zTXt":
		if len(rest) < 1 {
			return Entry{}, errors.New("missing compression method")
		}
		if rest[0] != 0 {
			return Entry{}, fmt.Errorf("unknown compression method %d", rest[0])
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return Entry{}, err
		}
		entry.Text = latin1(text)
	case "iTXt":
		if len(rest) < 2 {
			return Entry{}, errors.New("missing compression fields")
		}
		compressed, method := rest[0], rest[1]
		lang, rest, ok := bytes.Cut(rest[2:], []byte{0})
		if !ok {
			return Entry{}, errors.New("missing language tag terminator")
		}
		translated, text, ok := bytes.Cut(rest, []byte{0})
		if !ok {
			return Entry{}, errors.New("missing translated keyword terminator")
		}
		if compressed != 0 {
			if method != 0 {
				return Entry{}, fmt.Errorf("unknown compression method %d", method)
			}
			inflated, err := inflate(text)
			if err != nil {
				return Entry{}, err
			}
			text = inflated
		}
		if !utf8.Valid(text) {
			return Entry{}, errors.New("iTXt text is not valid utf-8")
		}
		entry.Language = string(lang)
		entry.TranslatedKeyword = string(translated)
		entry.Text = string(text)
	}
	return entry, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	text, err := io.ReadAll(io.LimitReader(zr, maxTextLength+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(text) > maxTextLength {
		return nil, fmt.Errorf("inflated text exceeds %d bytes", maxTextLength)
	}
	return text, nil
}

// latin1 decodes ISO 8859-1 text. Writers frequently put UTF-8 into tEXt
// despite the standard, so valid UTF-8 is kept as is.
func latin1(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
