package httpparse

import "strings"

// Header is a case-normalised request header map, keyed by lowercase name
// (spec.md §3: "case-normalised header map (lowercase keys)").
type Header map[string]string

func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

func (h Header) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}
