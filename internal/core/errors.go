package core

import (
	"errors"
	"fmt"
)

// Error kinds returned by Import. Test with errors.Is.
var (
	// ErrStoreOpen means the store could not be opened or created.
	ErrStoreOpen = errors.New("store open failed")

	// ErrSchema means a policy table could not be created.
	ErrSchema = errors.New("schema error")

	// ErrSourceRead means the source file could not be opened or read to the end.
	ErrSourceRead = errors.New("source read failed")

	// ErrRowInsert marks a single row that failed to insert. It never aborts
	// an import; it only appears in Result.Failures.
	ErrRowInsert = errors.New("row insert failed")
)

// ImportError is a fatal import failure. It unwraps to both its Kind and the
// underlying cause.
type ImportError struct {
	Kind  error  // One of ErrStoreOpen, ErrSchema, ErrSourceRead
	Table string // Table being created, for ErrSchema
	Path  string // Store or source path involved
	Line  int    // Source line, when known
	Err   error
}

func (e *ImportError) Error() string {
	msg := e.Kind.Error()
	switch {
	case e.Table != "":
		msg += " (table " + e.Table + ")"
	case e.Path != "":
		msg += " (" + e.Path + ")"
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is/As against the kind and the cause.
func (e *ImportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RowFailure records one row that could not be inserted.
type RowFailure struct {
	Line  int    `json:"line"`  // CSV line of the row (header is line 1)
	Table string `json:"table"` // Table whose insert failed
	Err   error  `json:"-"`
}

// Error implements error so failures can be logged or wrapped directly.
func (f RowFailure) Error() string {
	return fmt.Sprintf("%s: line %d into %s: %v", ErrRowInsert, f.Line, f.Table, f.Err)
}

// Unwrap returns ErrRowInsert and the store error.
func (f RowFailure) Unwrap() []error {
	return []error{ErrRowInsert, f.Err}
}

// Message returns the store error text.
func (f RowFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}
