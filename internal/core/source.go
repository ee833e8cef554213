package core

// source.go builds the reader chain for CSV source files.
//
// Files are decoded on the fly without loading them into memory:
//
//   - a leading byte order mark is stripped and, for UTF-8/UTF-16 BOMs,
//     overrides the configured encoding
//   - the remaining bytes are decoded from the configured charset to UTF-8;
//     invalid UTF-8 is replaced with U+FFFD
//   - raw bytes consumed from the file are counted for progress reporting

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultSourceEncoding is used when no encoding is configured.
const DefaultSourceEncoding = "utf-8"

// LookupEncoding resolves a charset name. Supported: utf-8, windows-1252
// and iso-8859-1, plus their common aliases.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported source encoding %q", name)
	}
}

// CountingReader tracks bytes read from an underlying reader.
// BytesRead is safe to call from other goroutines.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader wraps r; total is the expected size or 0.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	p := int(r.BytesRead() * 100 / r.Total)
	if p > 100 {
		return 100
	}
	return p
}

// SourceReader yields UTF-8 text decoded from a source file.
type SourceReader struct {
	io.Reader
	counter *CountingReader
}

// NewSourceReader wraps a raw source stream. enc may be nil for UTF-8.
func NewSourceReader(r io.Reader, enc encoding.Encoding, total int64) *SourceReader {
	if enc == nil {
		enc = unicode.UTF8
	}
	counter := NewCountingReader(r, total)
	decoder := unicode.BOMOverride(enc.NewDecoder())
	return &SourceReader{
		Reader:  transform.NewReader(counter, decoder),
		counter: counter,
	}
}

// BytesRead returns the raw bytes consumed from the source.
func (s *SourceReader) BytesRead() int64 {
	return s.counter.BytesRead()
}

// Progress returns the read progress as a percentage.
func (s *SourceReader) Progress() int {
	return s.counter.Progress()
}
