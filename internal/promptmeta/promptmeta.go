// Package promptmeta resolves the prompt fields of a NovelAI metadata document.
//
// NovelAI has stored the same information under different keys across
// releases (v3 flat "prompt"/"uc", v4 "v4_prompt.caption" trees, and a
// Comment object nested inside the outer text-chunk document). Resolve walks
// the known locations in preference order and returns the first non-empty
// value for each field.
package promptmeta

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultSlots is the number of character slots reported when the caller does
// not ask for a specific count.
const DefaultSlots = 6

// Character is one per-character prompt pair.
type Character struct {
	Prompt string `json:"char_caption"`
	UC     string `json:"char_uc"`
}

// Fields is the resolved view of a metadata document.
type Fields struct {
	Prompt     string         `json:"prompt"`
	UC         string         `json:"uc"`
	Model      string         `json:"model"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Characters []Character    `json:"char_captions"`
	Raw        map[string]any `json:"raw_data,omitempty"`
}

// Resolve extracts Fields from doc. Characters always has exactly slots
// entries; missing ones are empty. A nil or empty doc yields zero Fields with
// empty character slots.
func Resolve(doc map[string]any, slots int) Fields {
	if slots <= 0 {
		slots = DefaultSlots
	}
	fields := Fields{Characters: make([]Character, slots)}
	if len(doc) == 0 {
		return fields
	}
	comment := Lookup(doc, "Comment")

	fields.Prompt = text(first(
		Lookup(doc, "v4_prompt", "caption", "base_caption"),
		Lookup(doc, "prompt"),
		Lookup(comment, "v4_prompt", "caption", "base_caption"),
		Lookup(comment, "prompt"),
	))
	fields.UC = text(first(
		Lookup(doc, "uc"),
		Lookup(doc, "v4_negative_prompt", "caption", "base_caption"),
		Lookup(comment, "uc"),
		Lookup(comment, "v4_negative_prompt", "caption", "base_caption"),
	))
	fields.Model = text(first(
		Lookup(doc, "model"),
		Lookup(doc, "sampler"),
		Lookup(doc, "Software"),
		Lookup(doc, "Source"),
		Lookup(comment, "model"),
		Lookup(comment, "sampler"),
		version(Lookup(doc, "version")),
		version(Lookup(comment, "version")),
	))
	fields.Width = integer(first(Lookup(doc, "width"), Lookup(comment, "width")))
	fields.Height = integer(first(Lookup(doc, "height"), Lookup(comment, "height")))

	positive := captions(doc, comment, "v4_prompt")
	negative := captions(doc, comment, "v4_negative_prompt")
	for i := range fields.Characters {
		if i < len(positive) {
			fields.Characters[i].Prompt = charCaption(positive[i])
		}
		if i < len(negative) {
			fields.Characters[i].UC = charCaption(negative[i])
		}
	}
	fields.Raw = doc
	return fields
}

// Lookup follows path through nested objects. It returns nil when any step is
// missing or not an object.
func Lookup(v any, path ...string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func captions(doc, comment any, root string) []any {
	if list, ok := Lookup(doc, root, "caption", "char_captions").([]any); ok && len(list) > 0 {
		return list
	}
	list, _ := Lookup(comment, root, "caption", "char_captions").([]any)
	return list
}

func charCaption(v any) string {
	s, _ := Lookup(v, "char_caption").(string)
	return s
}

// first returns the first value that is not empty: nil, a blank string and an
// empty list are all skipped.
func first(values ...any) any {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case []any:
			if len(t) > 0 {
				return t
			}
		default:
			return v
		}
	}
	return nil
}

// version renders a truthy version value as "v<version>".
func version(v any) any {
	if !truthy(v) {
		return nil
	}
	return "v" + text(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
	return fmt.Sprint(v)
}

func integer(v any) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return roundInt(f)
		}
	case float64:
		return roundInt(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

func roundInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}
