// Package normalization maps free-form configuration strings onto typed enums.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Enum recognizes a closed set of string values for the type T. Input is
// trimmed and lower-cased before lookup; aliases may map onto the same value.
type Enum[T ~string] struct {
	values   map[string]T
	fallback T
	keys     []string
}

// NewEnum builds an Enum. fallback is returned for empty input.
func NewEnum[T ~string](values map[string]T, fallback T) *Enum[T] {
	e := &Enum[T]{values: make(map[string]T, len(values)), fallback: fallback}
	for k, v := range values {
		key := clean(k)
		e.values[key] = v
		e.keys = append(e.keys, key)
	}
	slices.Sort(e.keys)
	return e
}

// Parse resolves raw. Empty input yields the fallback; unknown input is an error.
func (e *Enum[T]) Parse(raw string) (T, error) {
	key := clean(raw)
	if key == "" {
		return e.fallback, nil
	}
	if v, ok := e.values[key]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(e.keys, ", "))
}

// Normalize is Parse without the error: unknown input yields the fallback.
func (e *Enum[T]) Normalize(raw string) T {
	v, err := e.Parse(raw)
	if err != nil {
		return e.fallback
	}
	return v
}

// Keys returns the accepted spellings in sorted order.
func (e *Enum[T]) Keys() []string {
	return slices.Clone(e.keys)
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
