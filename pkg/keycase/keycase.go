// Package keycase rewrites the object keys of a JSON document between
// camelCase and snake_case. Values, including nested string values, are kept.
package keycase

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// ToSnake converts every object key of data to snake_case.
func ToSnake(data []byte) ([]byte, error) {
	return transcode(data, Snake)
}

// ToCamel converts every object key of data to camelCase.
func ToCamel(data []byte) ([]byte, error) {
	return transcode(data, Camel)
}

// Snake converts a single camelCase key. Runs of capitals are kept together,
// so "videoURL" becomes "video_url".
func Snake(key string) string {
	runes := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Camel converts a single snake_case key. Leading underscores are kept and
// keys without underscores are returned unchanged.
func Camel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	rest := strings.TrimLeft(key, "_")
	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(key[:len(key)-len(rest)])

	upper := false
	for _, r := range rest {
		switch {
		case r == '_':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func transcode(data []byte, convert func(string) string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	return json.Marshal(rewrite(v, convert))
}

func rewrite(v any, convert func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[convert(k)] = rewrite(val, convert)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = rewrite(val, convert)
		}
		return t
	default:
		return v
	}
}
