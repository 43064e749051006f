package pngtext_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"reflect"
	"testing"

	"naimeta/internal/pngtext"
)

func blankPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestInsertAndReadAllChunkTypes(t *testing.T) {
	data, err := pngtext.Insert(blankPNG(t),
		pngtext.Entry{Keyword: "Title", Text: "café"},
		pngtext.Entry{Chunk: "zTXt", Keyword: "Description", Text: "long prompt, long prompt, long prompt"},
		pngtext.Entry{Keyword: "Comment", Text: "猫の絵"},
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	chunks, err := pngtext.ReadBytes(data)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(chunks), chunks)
	}
	want := []struct{ chunk, key, text string }{
		{"tEXt", "Title", "café"},
		{"zTXt", "Description", "long prompt, long prompt, long prompt"},
		{"iTXt", "Comment", "猫の絵"},
	}
	for i, w := range want {
		got := chunks[i]
		if got.Chunk != w.chunk || got.Keyword != w.key || got.Text != w.text {
			t.Fatalf("entry %d = %+v, want %s %s=%q", i, got, w.chunk, w.key, w.text)
		}
	}

	// The image data must still decode after insertion.
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("png.Decode after Insert: %v", err)
	}
}

func TestReadDecodesLatin1(t *testing.T) {
	data, err := pngtext.Insert(blankPNG(t), pngtext.Entry{Chunk: "tEXt", Keyword: "Author", Text: "Zoë"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// The stored bytes are Latin-1, not UTF-8.
	if !bytes.Contains(data, []byte{'Z', 'o', 0xEB}) {
		t.Fatal("expected Latin-1 encoded text in chunk")
	}
	chunks, err := pngtext.ReadBytes(data)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if text, ok := chunks.Get("Author"); !ok || text != "Zoë" {
		t.Fatalf("Get(Author) = %q, %v", text, ok)
	}
}

func TestReadRejectsBadCRC(t *testing.T) {
	data, err := pngtext.Insert(blankPNG(t), pngtext.Entry{Keyword: "Title", Text: "hello"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	idx := bytes.Index(data, []byte("hello"))
	if idx < 0 {
		t.Fatal("inserted text not found")
	}
	data[idx] = 'j'
	_, err = pngtext.ReadBytes(data)
	if !errors.Is(err, pngtext.ErrBadCRC) {
		t.Fatalf("expected ErrBadCRC, got %v", err)
	}
}

func TestReadRejectsNonPNG(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("GIF89a......"), []byte("\x89PNG")} {
		if _, err := pngtext.ReadBytes(data); !errors.Is(err, pngtext.ErrNotPNG) {
			t.Fatalf("ReadBytes(%q): expected ErrNotPNG, got %v", data, err)
		}
	}
	if _, err := pngtext.Insert([]byte("nope"), pngtext.Entry{Keyword: "a", Text: "b"}); !errors.Is(err, pngtext.ErrNotPNG) {
		t.Fatalf("Insert: expected ErrNotPNG, got %v", err)
	}
}

func TestReadTruncatedStreamKeepsEarlierEntries(t *testing.T) {
	data, err := pngtext.Insert(blankPNG(t), pngtext.Entry{Keyword: "Title", Text: "kept"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	cut := bytes.Index(data, []byte("IDAT")) + 6
	chunks, err := pngtext.ReadBytes(data[:cut])
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if text, ok := chunks.Get("Title"); !ok || text != "kept" {
		t.Fatalf("expected the Title entry before the cut, got %+v", chunks)
	}
}

func TestInsertValidatesKeyword(t *testing.T) {
	if _, err := pngtext.Insert(blankPNG(t), pngtext.Entry{Keyword: "", Text: "x"}); err == nil {
		t.Fatal("expected error for empty keyword")
	}
	if _, err := pngtext.Insert(blankPNG(t), pngtext.Entry{Chunk: "tEXt", Keyword: "k", Text: "猫"}); err == nil {
		t.Fatal("expected error for non Latin-1 tEXt")
	}
}

func TestMetadata(t *testing.T) {
	chunks := pngtext.Chunks{
		{Chunk: "tEXt", Keyword: "Title", Text: "AI generated image"},
		{Chunk: "tEXt", Keyword: "Comment", Text: ` {"prompt": "a cat", "steps": 28}`},
		{Chunk: "tEXt", Keyword: "Description", Text: "{not json"},
		{Chunk: "tEXt", Keyword: "Generation time", Text: "3.2"},
		{Chunk: "tEXt", Keyword: "Title", Text: "second title"},
	}
	got := pngtext.Metadata(chunks)
	want := map[string]any{
		"Title":           "second title",
		"Comment":         map[string]any{"prompt": "a cat", "steps": json.Number("28")},
		"Description":     "{not json",
		"Generation time": "3.2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Metadata = %#v, want %#v", got, want)
	}
	if pngtext.Metadata(nil) != nil {
		t.Fatal("Metadata(nil) should be nil")
	}
}
