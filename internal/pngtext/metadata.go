package pngtext

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// KnownKeys are the keywords NovelAI writes into text chunks. Their values are
// parsed as JSON when they look like a JSON object.
var KnownKeys = []string{"Title", "Description", "Comment", "Software", "Source"}

// Metadata folds chunks into a document. Known keys come first and have
// JSON-object values decoded; every other keyword is copied as a string.
// It returns nil when there are no text chunks.
func Metadata(chunks Chunks) map[string]any {
	if len(chunks) == 0 {
		return nil
	}
	out := make(map[string]any, len(chunks))
	for _, key := range KnownKeys {
		value, ok := chunks.Get(key)
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(value), "{") {
			if doc, err := decodeJSON(value); err == nil {
				out[key] = doc
				continue
			}
		}
		out[key] = value
	}
	for _, key := range chunks.Keywords() {
		if _, ok := out[key]; ok {
			continue
		}
		value, _ := chunks.Get(key)
		out[key] = value
	}
	return out
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errTrailingData
		}
		return nil, err
	}
	return v, nil
}

var errTrailingData = errors.New("unexpected data after top-level value")
