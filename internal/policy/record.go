package policy

import (
	"math"
	"strconv"
)

// Record is one policy row as read from a CSV file. Cells are held verbatim
// in table order; a nil cell means the column was absent from the source.
type Record struct {
	cells [FieldCount]*string
}

// MapRow builds a Record from a CSV data row. Columns missing from the header,
// and cells past the end of a short row, are left absent. Cells beyond the
// header and headers outside the column list are ignored. No cell is trimmed
// or validated.
func MapRow(idx HeaderIndex, row []string) Record {
	var rec Record
	for i, f := range Fields {
		pos, ok := idx[f.Column]
		if !ok || pos >= len(row) {
			continue
		}
		v := row[pos]
		rec.cells[i] = &v
	}
	return rec
}

// Get returns the raw cell for a column and whether it was present.
func (r Record) Get(column string) (string, bool) {
	for i, f := range Fields {
		if f.Column == column {
			if r.cells[i] == nil {
				return "", false
			}
			return *r.cells[i], true
		}
	}
	return "", false
}

// Set stores a raw cell for a column. Unknown columns are ignored.
func (r *Record) Set(column, value string) {
	for i, f := range Fields {
		if f.Column == column {
			v := value
			r.cells[i] = &v
			return
		}
	}
}

// Values returns the bind parameters for an insert, in table order.
//
// Text cells bind as string, absent cells as nil. Real cells that parse as a
// finite float bind as float64; empty real cells bind as nil; any other real
// cell, Infinity and NaN included, is passed through as its raw text and left
// for the store to accept or reject.
func (r Record) Values() []any {
	vals := make([]any, FieldCount)
	for i, f := range Fields {
		c := r.cells[i]
		if c == nil {
			continue
		}
		if f.Type == FieldReal {
			vals[i] = realValue(*c)
			continue
		}
		vals[i] = *c
	}
	return vals
}

func realValue(s string) any {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	return f
}
