package policy

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader turns a raw CSV header cell into a column name: surrounding
// whitespace is trimmed, inner spaces become underscores, and the result is
// NFC-normalized so decomposed accents ("o" + U+0301) match the column list.
// Case is preserved.
func NormalizeHeader(h string) string {
	return norm.NFC.String(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
}

// HeaderIndex maps normalized header names to their position in a CSV row.
type HeaderIndex map[string]int

// NewHeaderIndex normalizes a header row. When two cells normalize to the
// same name the later one wins.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[NormalizeHeader(h)] = i
	}
	return idx
}

// Has reports whether the header carries the given column.
func (h HeaderIndex) Has(column string) bool {
	_, ok := h[column]
	return ok
}

// Missing returns the policy columns absent from the header, in table order.
func (h HeaderIndex) Missing() []string {
	var missing []string
	for _, f := range Fields {
		if !h.Has(f.Column) {
			missing = append(missing, f.Column)
		}
	}
	return missing
}

// Unknown returns header names that are not policy columns. They are ignored
// on import.
func (h HeaderIndex) Unknown() []string {
	known := make(map[string]struct{}, len(Fields))
	for _, f := range Fields {
		known[f.Column] = struct{}{}
	}
	var unknown []string
	for name := range h {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
