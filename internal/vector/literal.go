// Package vector converts embeddings to and from the bracketed text literal
// accepted by vector-capable stores, e.g. "[0.1,0.2,0.3]".
package vector

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders v as a store literal. Values use the shortest representation
// that parses back to the same float64. A nil or empty slice renders as "[]".
func Format(v []float64) string {
	var b strings.Builder
	b.Grow(len(v)*12 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Parse reads a literal produced by Format (or by the store). Whitespace
// around elements is ignored. "[]" yields an empty, non-nil slice.
func Parse(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("vector: malformed literal %q: must be enclosed in brackets", preview(s))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("vector: malformed element %d in literal: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Dims returns the number of elements in a literal without keeping them.
func Dims(s string) (int, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

func preview(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
