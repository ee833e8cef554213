package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/encoding"

	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/JonMunkholm/policyimport/internal/policy"
	"github.com/JonMunkholm/policyimport/internal/store"
)

// MaxRetainedFailures caps Result.Failures. Result.Failed still counts all.
const MaxRetainedFailures = 100

// progressLogEvery is the row interval between progress log lines.
const progressLogEvery = 1000

// Outcome labels reported to a Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomePartial    = "partial"
	OutcomeStoreOpen  = "store_open_error"
	OutcomeSchema     = "schema_error"
	OutcomeSourceRead = "source_read_error"
	OutcomeCanceled   = "canceled"
	OutcomeError      = "error"
)

// OpenFunc opens the store at path.
type OpenFunc func(ctx context.Context, path string) (store.Store, error)

// Recorder receives import metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ImportStarted()
	ImportFinished(outcome string, elapsed time.Duration)
	RowsProcessed(importInserted, aggregateInserted, failed int)
}

type nopRecorder struct{}

func (nopRecorder) ImportStarted()                       {}
func (nopRecorder) ImportFinished(string, time.Duration) {}
func (nopRecorder) RowsProcessed(int, int, int)          {}

// Result summarizes a completed import.
type Result struct {
	ImportTable       string        `json:"import_table"`
	AggregateTable    string        `json:"aggregate_table"`
	RowsRead          int           `json:"rows_read"`
	ImportInserted    int           `json:"import_inserted"`
	AggregateInserted int           `json:"aggregate_inserted"`
	Failed            int           `json:"failed"`
	Failures          []RowFailure  `json:"-"`
	BytesRead         int64         `json:"bytes_read"`
	Duration          time.Duration `json:"-"`
}

// Message is the completion message naming both tables.
func (r *Result) Message() string {
	return fmt.Sprintf("New data successfully inserted into table %s and %s", r.ImportTable, r.AggregateTable)
}

// Partial reports whether any row failed to insert.
func (r *Result) Partial() bool {
	return r.Failed > 0
}

func (r *Result) addFailure(f RowFailure) {
	r.Failed++
	if len(r.Failures) < MaxRetainedFailures {
		r.Failures = append(r.Failures, f)
	}
}

// Importer loads policy CSV files into a store. The zero value is not
// usable; create one with NewImporter.
type Importer struct {
	open      OpenFunc
	storeOpts []store.Option
	now       func() time.Time
	logger    *slog.Logger
	encoding  encoding.Encoding
	recorder  Recorder
}

// Option configures an Importer.
type Option func(*Importer)

// WithOpener replaces the store factory.
func WithOpener(fn OpenFunc) Option {
	return func(im *Importer) { im.open = fn }
}

// WithStoreOptions passes options to store.Open for the default opener.
func WithStoreOptions(opts ...store.Option) Option {
	return func(im *Importer) { im.storeOpts = append(im.storeOpts, opts...) }
}

// WithClock sets the clock used to name import tables.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithLogger sets a fixed logger. Without it, the logger comes from the
// import context (carrying the request id, if any).
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithSourceEncoding sets the charset of source files. A BOM in the file
// still takes precedence.
func WithSourceEncoding(enc encoding.Encoding) Option {
	return func(im *Importer) { im.encoding = enc }
}

// WithRecorder reports import metrics to r.
func WithRecorder(r Recorder) Option {
	return func(im *Importer) { im.recorder = r }
}

// NewImporter returns an Importer using store.Open and local time.
func NewImporter(opts ...Option) *Importer {
	im := &Importer{
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.open == nil {
		storeOpts := im.storeOpts
		im.open = func(ctx context.Context, path string) (store.Store, error) {
			return store.Open(ctx, path, storeOpts...)
		}
	}
	return im
}

// Import loads sourcePath into the store at storePath using default options.
func Import(ctx context.Context, storePath, sourcePath string) (*Result, error) {
	return NewImporter().Import(ctx, storePath, sourcePath)
}

// Import opens the store, ensures the aggregate table and a new import table
// exist, then streams sourcePath row by row. Each row is inserted into the
// import table and, only if that succeeds, into the aggregate table. Row
// failures are logged and counted without stopping the stream.
//
// Fatal errors are *ImportError values of kind ErrStoreOpen, ErrSchema or
// ErrSourceRead. If ctx ends mid-stream, Import stops reading and returns an
// ErrSourceRead error that also matches the context error; rows already
// inserted stay. The store is closed on every path.
func (im *Importer) Import(ctx context.Context, storePath, sourcePath string) (res *Result, err error) {
	start := time.Now()
	log := im.loggerFor(ctx).With("store", storePath, "source", sourcePath)

	im.recorder.ImportStarted()
	defer func() {
		outcome := Outcome(res, err)
		im.recorder.ImportFinished(outcome, time.Since(start))
		if res != nil {
			im.recorder.RowsProcessed(res.ImportInserted, res.AggregateInserted, res.Failed)
		}
	}()

	log.Debug("opening store")
	st, err := im.open(ctx, storePath)
	if err != nil {
		log.Error("store open failed", "error", err)
		return nil, &ImportError{Kind: ErrStoreOpen, Path: storePath, Err: err}
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn("closing store", "error", cerr)
		}
	}()

	if err := st.EnsurePolicyTable(ctx, AggregateTable); err != nil {
		log.Error("create aggregate table failed", "table", AggregateTable, "error", err)
		return nil, &ImportError{Kind: ErrSchema, Table: AggregateTable, Err: err}
	}

	importTable := ImportTableName(im.now())
	if err := st.EnsurePolicyTable(ctx, importTable); err != nil {
		log.Error("create import table failed", "table", importTable, "error", err)
		return nil, &ImportError{Kind: ErrSchema, Table: importTable, Err: err}
	}
	log.Info("import tables ready", "import_table", importTable, "aggregate_table", AggregateTable)

	res = &Result{ImportTable: importTable, AggregateTable: AggregateTable}
	loadErr := im.load(ctx, st, sourcePath, res, log.With("import_table", importTable))
	res.Duration = time.Since(start)
	if loadErr != nil {
		im.recorder.RowsProcessed(res.ImportInserted, res.AggregateInserted, res.Failed)
		log.Error("import aborted",
			"rows_read", res.RowsRead,
			"import_inserted", res.ImportInserted,
			"aggregate_inserted", res.AggregateInserted,
			"failed", res.Failed,
			"error", loadErr,
		)
		return nil, loadErr
	}

	log.Info("import complete",
		"import_table", res.ImportTable,
		"rows_read", res.RowsRead,
		"import_inserted", res.ImportInserted,
		"aggregate_inserted", res.AggregateInserted,
		"failed", res.Failed,
		"bytes", res.BytesRead,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (im *Importer) load(ctx context.Context, st store.Store, sourcePath string, res *Result, log *slog.Logger) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return &ImportError{Kind: ErrSourceRead, Path: sourcePath, Err: err}
	}
	defer f.Close()

	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	src := NewSourceReader(f, im.encoding, total)
	defer func() { res.BytesRead = src.BytesRead() }()

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		log.Warn("source file is empty")
		return nil
	}
	if err != nil {
		return sourceReadError(sourcePath, err)
	}

	idx := policy.NewHeaderIndex(header)
	if missing := idx.Missing(); len(missing) > 0 {
		log.Warn("source header is missing policy columns; they will be stored empty", "missing", missing)
	}
	if unknown := idx.Unknown(); len(unknown) > 0 {
		log.Debug("ignoring unknown source columns", "columns", unknown)
	}

	for {
		if err := ctx.Err(); err != nil {
			return &ImportError{
				Kind: ErrSourceRead,
				Path: sourcePath,
				Err:  fmt.Errorf("interrupted after %d rows: %w", res.RowsRead, err),
			}
		}

		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return sourceReadError(sourcePath, err)
		}

		line, _ := r.FieldPos(0)
		res.RowsRead++
		rec := policy.MapRow(idx, row)

		if _, err := st.InsertPolicy(ctx, res.ImportTable, rec); err != nil {
			im.rowFailed(res, log, RowFailure{Line: line, Table: res.ImportTable, Err: err})
			continue
		}
		res.ImportInserted++

		if _, err := st.InsertPolicy(ctx, res.AggregateTable, rec); err != nil {
			im.rowFailed(res, log, RowFailure{Line: line, Table: res.AggregateTable, Err: err})
			continue
		}
		res.AggregateInserted++

		if res.RowsRead%progressLogEvery == 0 {
			log.Debug("import progress",
				"rows_read", res.RowsRead,
				"bytes_read", src.BytesRead(),
				"progress_pct", src.Progress(),
			)
		}
	}
}

func (im *Importer) rowFailed(res *Result, log *slog.Logger, f RowFailure) {
	res.addFailure(f)
	log.Warn("row insert failed", "line", f.Line, "table", f.Table, "error", f.Err)
}

func (im *Importer) loggerFor(ctx context.Context) *slog.Logger {
	if im.logger != nil {
		return im.logger
	}
	return logging.FromContext(ctx)
}

func sourceReadError(path string, err error) error {
	ie := &ImportError{Kind: ErrSourceRead, Path: path, Err: err}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		ie.Line = pe.StartLine
	}
	return ie
}

// Outcome classifies an import for metrics and logs.
func Outcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Partial():
		return OutcomePartial
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, ErrStoreOpen):
		return OutcomeStoreOpen
	case errors.Is(err, ErrSchema):
		return OutcomeSchema
	case errors.Is(err, ErrSourceRead):
		return OutcomeSourceRead
	default:
		return OutcomeError
	}
}
