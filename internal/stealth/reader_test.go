package stealth_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	"naimeta/internal/stealth"
)

func mustDoc(t testing.TB, text string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode fixture %q: %v", text, err)
	}
	return v
}

func gzipBytes(t testing.TB, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// rawStream assembles magic + declared bit length + body without validation.
func rawStream(magic string, bits uint32, body []byte) []byte {
	out := make([]byte, 0, len(magic)+4+len(body))
	out = append(out, magic...)
	out = binary.BigEndian.AppendUint32(out, bits)
	return append(out, body...)
}

func streamFromText(t testing.TB, text string) []byte {
	t.Helper()
	body := gzipBytes(t, []byte(text))
	return rawStream(stealth.Magic, uint32(len(body)*8), body)
}

func TestParseValidPayload(t *testing.T) {
	got, err := stealth.Parse(streamFromText(t, `{"prompt":"a cat","steps":28,"seed":3735928559}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := mustDoc(t, `{"prompt":"a cat","steps":28,"seed":3735928559}`)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %#v, want %#v", got, want)
	}
}

func TestParseRejectsWrongMagic(t *testing.T) {
	cases := map[string][]byte{
		"zeros":       make([]byte, 64),
		"ones":        bytes.Repeat([]byte{0xFF}, 64),
		"near miss":   rawStream("stealth_pngcomq", 8, []byte{0}),
		"other magic": rawStream("stealth_pnginfo", 8, []byte{0}),
		"invalid utf": append([]byte{0xC3, 0x28}, make([]byte, 40)...),
	}
	for name, stream := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := stealth.Parse(stream)
			if !errors.Is(err, stealth.ErrMagicMismatch) {
				t.Fatalf("expected ErrMagicMismatch, got %v", err)
			}
			if !stealth.IsNotPresent(err) {
				t.Fatal("magic mismatch should count as not present")
			}
		})
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	full := streamFromText(t, `{"a":1}`)
	for _, n := range []int{0, 5, len(stealth.Magic), len(stealth.Magic) + 3} {
		_, err := stealth.Parse(full[:n])
		if !errors.Is(err, stealth.ErrTruncatedHeader) {
			t.Fatalf("len %d: expected ErrTruncatedHeader, got %v", n, err)
		}
	}
}

func TestParseDeclaredLengthBeyondStream(t *testing.T) {
	full := streamFromText(t, `{"a":1}`)
	_, err := stealth.Parse(full[:len(full)-1])
	if !errors.Is(err, stealth.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if !stealth.IsNotPresent(err) || stealth.IsCorrupt(err) {
		t.Fatalf("a cropped stream should read as absent, not corrupt: %v", err)
	}

	_, err = stealth.Parse(rawStream(stealth.Magic, 0xFFFFFFFF, []byte{1, 2, 3}))
	if !errors.Is(err, stealth.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge for huge length, got %v", err)
	}
}

func TestParseReaderTruncatedBody(t *testing.T) {
	full := streamFromText(t, `{"a":1}`)
	_, err := stealth.ParseReader(bytes.NewReader(full[:len(full)-2]))
	if !errors.Is(err, stealth.ErrTruncatedBody) {
		t.Fatalf("expected ErrTruncatedBody, got %v", err)
	}
	if !stealth.IsNotPresent(err) {
		t.Fatal("truncated body should count as not present")
	}

	got, err := stealth.ParseReader(bytes.NewReader(full))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if !reflect.DeepEqual(got, mustDoc(t, `{"a":1}`)) {
		t.Fatalf("ParseReader = %#v", got)
	}
}

func TestParseTruncatesBitLength(t *testing.T) {
	// 17 bits -> 2 bytes. Exactly two body bytes are consumed, which is too
	// short for a gzip stream, so decompression (not a length check) fails.
	_, err := stealth.Parse(rawStream(stealth.Magic, 17, []byte{0x1f, 0x8b}))
	if !errors.Is(err, stealth.ErrDecompression) {
		t.Fatalf("expected ErrDecompression, got %v", err)
	}

	// A full body declared with a few extra remainder bits still parses and
	// trailing padding is ignored.
	body := gzipBytes(t, []byte(`{"ok":true}`))
	stream := rawStream(stealth.Magic, uint32(len(body)*8+7), body)
	stream = append(stream, 0xDE, 0xAD)
	got, err := stealth.Parse(stream)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"ok": true}) {
		t.Fatalf("Parse = %#v", got)
	}
}

func TestParseCorruptBody(t *testing.T) {
	cases := []struct {
		name   string
		stream []byte
		want   error
	}{
		{
			name:   "not gzip",
			stream: rawStream(stealth.Magic, 8*6, []byte("hello!")),
			want:   stealth.ErrDecompression,
		},
		{
			name: "invalid utf-8",
			stream: func() []byte {
				body := gzipBytes(t, []byte{'"', 0xFF, 0xFE, '"'})
				return rawStream(stealth.Magic, uint32(8*len(body)), body)
			}(),
			want: stealth.ErrEncoding,
		},
		{
			name:   "syntax error",
			stream: streamFromText(t, `{"prompt": `),
			want:   stealth.ErrMalformedJSON,
		},
		{
			name:   "trailing data",
			stream: streamFromText(t, `{"a":1} {"b":2}`),
			want:   stealth.ErrMalformedJSON,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stealth.Parse(tc.stream)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !stealth.IsCorrupt(err) {
				t.Fatalf("expected corrupt classification for %v", err)
			}
			var fe *stealth.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %T", err)
			}
		})
	}
}

func TestParseNonObjectPassesThrough(t *testing.T) {
	got, err := stealth.Parse(streamFromText(t, `["a", 1]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, mustDoc(t, `["a", 1]`)) {
		t.Fatalf("Parse = %#v", got)
	}
}

func TestCommentUnwrap(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "nested json",
			text: `{"Comment": "{\"prompt\":\"a cat\"}"}`,
			want: `{"Comment": {"prompt": "a cat"}}`,
		},
		{
			name: "plain string",
			text: `{"Comment": "not json"}`,
			want: `{"Comment": "not json"}`,
		},
		{
			name: "already object",
			text: `{"Comment": {"prompt": "x"}, "Title": "{\"a\":1}"}`,
			want: `{"Comment": {"prompt": "x"}, "Title": "{\"a\":1}"}`,
		},
		{
			name: "scalar json string",
			text: `{"Comment": "42"}`,
			want: `{"Comment": 42}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := stealth.Parse(streamFromText(t, tc.text))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if want := mustDoc(t, tc.want); !reflect.DeepEqual(got, want) {
				t.Fatalf("Parse = %#v, want %#v", got, want)
			}
		})
	}
}

func TestParseConcurrentMatchesSequential(t *testing.T) {
	const n = 16
	grids := make([]*stealth.Grid, n)
	for i := range grids {
		g, err := stealth.NewGrid(64, 32)
		if err != nil {
			t.Fatalf("NewGrid: %v", err)
		}
		doc := map[string]any{"index": json.Number(string(rune('0' + i%10))), "prompt": "grid"}
		if err := stealth.Encode(g, doc); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		grids[i] = g
	}

	sequential := make([]any, n)
	for i, g := range grids {
		doc, err := stealth.Decode(g)
		if err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		sequential[i] = doc
	}

	parallel := make([]any, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, g := range grids {
		wg.Add(1)
		go func(i int, g *stealth.Grid) {
			defer wg.Done()
			parallel[i], errs[i] = stealth.Decode(g)
		}(i, g)
	}
	wg.Wait()

	for i := range grids {
		if errs[i] != nil {
			t.Fatalf("parallel decode %d: %v", i, errs[i])
		}
		if !reflect.DeepEqual(parallel[i], sequential[i]) {
			t.Fatalf("grid %d: parallel %#v != sequential %#v", i, parallel[i], sequential[i])
		}
	}
}

func TestCursor(t *testing.T) {
	cur := stealth.NewCursor([]byte{0, 0, 1, 0, 9})
	v, err := cur.Uint32()
	if err != nil || v != 256 {
		t.Fatalf("Uint32 = %d, %v", v, err)
	}
	if cur.Pos() != 4 || cur.Remaining() != 1 {
		t.Fatalf("pos=%d remaining=%d", cur.Pos(), cur.Remaining())
	}
	if _, err := cur.Next(2); err == nil {
		t.Fatal("expected short read error")
	}
	if cur.Pos() != 4 {
		t.Fatalf("failed read advanced cursor to %d", cur.Pos())
	}
	b, err := cur.Next(1)
	if err != nil || b[0] != 9 {
		t.Fatalf("Next = %v, %v", b, err)
	}
}
