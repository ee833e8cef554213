package core

import (
	"strings"
	"time"
)

const (
	// AggregateTable accumulates the rows of every import.
	AggregateTable = "main_insurance_policies"

	// ImportTablePrefix starts every per-import table name.
	ImportTablePrefix = "insurance_policies_"

	importTableLayout = "20060102150405"
)

// ImportTableName returns the per-import table for an import started at t.
// The timestamp is formatted in t's own location; the importer's default
// clock is local time.
func ImportTableName(t time.Time) string {
	return ImportTablePrefix + t.Format(importTableLayout)
}

// IsImportTable reports whether name follows the per-import table scheme.
func IsImportTable(name string) bool {
	ts, ok := strings.CutPrefix(name, ImportTablePrefix)
	if !ok || len(ts) != len(importTableLayout) {
		return false
	}
	for _, c := range ts {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
