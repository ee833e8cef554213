package core

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/policyimport/internal/policy"
	"github.com/JonMunkholm/policyimport/internal/store"
)

const fullHeader = "Contratante,Número de póliza,Tipo de Póliza,Tipo de Plan,Dirección,R F C,Teléfono,Código Cliente," +
	"Vigencia Desde,Vigencia Hasta,Fecha de Expedición,Forma de Pago,Prima Neta MXN,Recargo por Pago Fraccionado MXN," +
	"Importe a Pagar MXN,Beneficiarios,Edad de Contratación,Tipo de Riesgo,Fumador,Coberturas"

const juanRow = `"Juan Pérez","POL-001","Vida","Individual","Av. Reforma 1","PEJJ800101XXX","5555555555","C-01",` +
	`"2024-01-01","2025-01-01","2023-12-15","Mensual","15000.50","300.00","15300.50","María Pérez","44","Bajo","No","Muerte"`

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "insurance_policies.db")
}

// fixedClock returns successive seconds starting at 2024-03-05 10:20:30.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	next := time.Date(2024, 3, 5, 10, 20, 30, 0, time.Local)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func newTestImporter(opts ...Option) *Importer {
	base := []Option{WithClock(fixedClock()), WithLogger(quietLogger)}
	return NewImporter(append(base, opts...)...)
}

func listTable(t *testing.T, path, table string) []policy.Stored {
	t.Helper()
	s, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.ListPolicies(context.Background(), table)
	require.NoError(t, err)
	return rows
}

func TestImport_JuanPerez(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, fullHeader+"\n"+juanRow+"\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)

	assert.Equal(t, "insurance_policies_20240305102030", res.ImportTable)
	assert.Equal(t, AggregateTable, res.AggregateTable)
	assert.Equal(t, 1, res.RowsRead)
	assert.Equal(t, 1, res.ImportInserted)
	assert.Equal(t, 1, res.AggregateInserted)
	assert.Zero(t, res.Failed)
	assert.False(t, res.Partial())
	assert.Equal(t,
		"New data successfully inserted into table insurance_policies_20240305102030 and main_insurance_policies",
		res.Message())

	for _, table := range []string{res.ImportTable, AggregateTable} {
		rows := listTable(t, db, table)
		require.Len(t, rows, 1, table)
		row := rows[0]
		assert.Equal(t, int64(1), row.ID)
		require.NotNil(t, row.Contratante)
		assert.Equal(t, "Juan Pérez", *row.Contratante)
		assert.Equal(t, "POL-001", *row.NumeroDePoliza)
		assert.Equal(t, "PEJJ800101XXX", *row.RFC)
		assert.Equal(t, policy.Float(15000.50), row.PrimaNeta)
		assert.Equal(t, policy.Float(15300.50), row.ImporteAPagar)
		assert.Equal(t, "Muerte", *row.Coberturas)
	}
}

func TestImport_TwiceCreatesTwoTablesAndDoublesAggregate(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, fullHeader+"\n"+juanRow+"\n"+juanRow+"\n")
	im := newTestImporter()

	first, err := im.Import(context.Background(), db, src)
	require.NoError(t, err)
	second, err := im.Import(context.Background(), db, src)
	require.NoError(t, err)

	assert.NotEqual(t, first.ImportTable, second.ImportTable)
	assert.Len(t, listTable(t, db, first.ImportTable), 2)
	assert.Len(t, listTable(t, db, second.ImportTable), 2)

	agg := listTable(t, db, AggregateTable)
	require.Len(t, agg, 4)
	for i, row := range agg {
		assert.Equal(t, int64(i+1), row.ID, "aggregate ids increase monotonically")
	}
}

func TestImport_MissingColumnStoredAsNull(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante,Prima Neta MXN\nAna,100\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AggregateInserted)

	rows := listTable(t, db, AggregateTable)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", *rows[0].Contratante)
	assert.Nil(t, rows[0].NumeroDePoliza)
	assert.Nil(t, rows[0].Coberturas)
	assert.False(t, rows[0].ImporteAPagar.Valid)
}

func TestImport_HeaderWhitespaceNormalized(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, " Contratante , Prima Neta MXN ,Unused Column\nAna,99.5,zzz\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)

	rows := listTable(t, db, res.ImportTable)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", *rows[0].Contratante)
	assert.Equal(t, policy.Float(99.5), rows[0].PrimaNeta)
}

func TestImport_HeaderMatchIsCaseSensitive(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "contratante,Fumador\nAna,No\n")

	_, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)

	rows := listTable(t, db, AggregateTable)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Contratante)
	assert.Equal(t, "No", *rows[0].Fumador)
}

func TestImport_RaggedRows(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante,Fumador,Coberturas\nAna\nLuis,Sí,Vida,extra,cells\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AggregateInserted)

	rows := listTable(t, db, AggregateTable)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].Fumador)
	assert.Equal(t, "Vida", *rows[1].Coberturas)
}

func TestImport_EmptySource(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.Zero(t, res.RowsRead)
	assert.Empty(t, listTable(t, db, res.ImportTable))
}

func TestImport_HeaderOnly(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, fullHeader+"\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.Zero(t, res.RowsRead)
}

func TestImport_BOMAndCRLF(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "\xEF\xBB\xBFContratante,Fumador\r\nAna,No\r\n")

	_, err := newTestImporter().Import(context.Background(), db, src)
	require.NoError(t, err)

	rows := listTable(t, db, AggregateTable)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Contratante, "BOM must not stick to the first header")
	assert.Equal(t, "Ana", *rows[0].Contratante)
	assert.Equal(t, "No", *rows[0].Fumador)
}

func TestImport_Windows1252Source(t *testing.T) {
	db := storePath(t)
	// "Teléfono" header and "Péréz" value encoded as Windows-1252
	src := writeCSV(t, "Contratante,Tel\xe9fono\nP\xe9r\xe9z,555\n")

	_, err := newTestImporter(WithSourceEncoding(charmap.Windows1252)).Import(context.Background(), db, src)
	require.NoError(t, err)

	rows := listTable(t, db, AggregateTable)
	require.Len(t, rows, 1)
	assert.Equal(t, "Péréz", *rows[0].Contratante)
	require.NotNil(t, rows[0].Telefono)
	assert.Equal(t, "555", *rows[0].Telefono)
}

func TestImport_InvalidStorePath(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "no", "such", "dir", "p.db")
	src := writeCSV(t, fullHeader+"\n"+juanRow+"\n")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrStoreOpen)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, db, ie.Path)

	_, statErr := os.Stat(filepath.Join(dir, "no"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "nothing may be created")
}

func TestImport_MissingSource(t *testing.T) {
	db := storePath(t)
	src := filepath.Join(t.TempDir(), "missing.csv")

	res, err := newTestImporter().Import(context.Background(), db, src)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// Tables created before the failure remain, empty
	s, err := store.Open(context.Background(), db)
	require.NoError(t, err)
	defer s.Close()

	tables, err := s.ListTables(context.Background(), ImportTablePrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"insurance_policies_20240305102030"}, tables)
	rows, err := s.ListPolicies(context.Background(), AggregateTable)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestImport_MalformedCSVIsSourceReadError(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante,Fumador\nAna,No\n\"Luis,Sí\n")

	_, err := newTestImporter().Import(context.Background(), db, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceRead)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Line)

	// Rows before the bad line were committed; there is no rollback
	assert.Len(t, listTable(t, db, AggregateTable), 1)
}

// flakyStore fails InsertPolicy for chosen tables and call numbers.
type flakyStore struct {
	store.Store
	failTable string
	failOn    map[int]bool // 1-based insert count into failTable
	calls     int
	closed    bool
	ensureErr error
}

func (f *flakyStore) EnsurePolicyTable(ctx context.Context, table string) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	return f.Store.EnsurePolicyTable(ctx, table)
}

func (f *flakyStore) InsertPolicy(ctx context.Context, table string, rec policy.Record) (int64, error) {
	if strings.HasPrefix(table, f.failTable) {
		f.calls++
		if f.failOn[f.calls] {
			return 0, errors.New("disk I/O error")
		}
	}
	return f.Store.InsertPolicy(ctx, table, rec)
}

func (f *flakyStore) Close() error {
	f.closed = true
	return f.Store.Close()
}

func flakyOpener(fake *flakyStore) OpenFunc {
	return func(ctx context.Context, path string) (store.Store, error) {
		s, err := store.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		fake.Store = s
		return fake, nil
	}
}

func TestImport_ImportTableFailureSkipsAggregate(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante\nA\nB\nC\n")
	fake := &flakyStore{failTable: ImportTablePrefix, failOn: map[int]bool{2: true}}

	res, err := newTestImporter(WithOpener(flakyOpener(fake))).Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.True(t, fake.closed)

	assert.Equal(t, 3, res.RowsRead)
	assert.Equal(t, 2, res.ImportInserted)
	assert.Equal(t, 2, res.AggregateInserted)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Partial())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 3, res.Failures[0].Line)
	assert.Equal(t, res.ImportTable, res.Failures[0].Table)
	assert.ErrorIs(t, res.Failures[0], ErrRowInsert)

	agg := listTable(t, db, AggregateTable)
	require.Len(t, agg, 2)
	assert.Equal(t, "A", *agg[0].Contratante)
	assert.Equal(t, "C", *agg[1].Contratante)
}

func TestImport_AggregateFailureKeepsImportRow(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante\nA\nB\n")
	fake := &flakyStore{failTable: AggregateTable, failOn: map[int]bool{1: true}}

	res, err := newTestImporter(WithOpener(flakyOpener(fake))).Import(context.Background(), db, src)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ImportInserted)
	assert.Equal(t, 1, res.AggregateInserted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, AggregateTable, res.Failures[0].Table)
	assert.Len(t, listTable(t, db, res.ImportTable), 2)
}

func TestImport_FailuresAreCapped(t *testing.T) {
	db := storePath(t)
	var b strings.Builder
	b.WriteString("Contratante\n")
	failOn := make(map[int]bool)
	for i := 1; i <= MaxRetainedFailures+20; i++ {
		b.WriteString("x\n")
		failOn[i] = true
	}
	src := writeCSV(t, b.String())
	fake := &flakyStore{failTable: ImportTablePrefix, failOn: failOn}

	res, err := newTestImporter(WithOpener(flakyOpener(fake))).Import(context.Background(), db, src)
	require.NoError(t, err)
	assert.Equal(t, MaxRetainedFailures+20, res.Failed)
	assert.Len(t, res.Failures, MaxRetainedFailures)
	assert.Zero(t, res.AggregateInserted)
}

func TestImport_SchemaErrorClosesStore(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante\nA\n")
	fake := &flakyStore{ensureErr: errors.New("database is locked")}

	_, err := newTestImporter(WithOpener(flakyOpener(fake))).Import(context.Background(), db, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, AggregateTable, ie.Table)
	assert.True(t, fake.closed, "store must be closed on schema errors")
}

func TestImport_CanceledContextStops(t *testing.T) {
	db := storePath(t)
	src := writeCSV(t, "Contratante\nA\n")
	ctx, cancel := context.WithCancel(context.Background())
	fake := &flakyStore{}
	opener := flakyOpener(fake)

	im := newTestImporter(WithOpener(func(_ context.Context, path string) (store.Store, error) {
		s, err := opener(context.Background(), path)
		cancel()
		return s, err
	}))

	_, err := im.Import(ctx, db, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "interrupted after 0 rows")
	assert.Equal(t, OutcomeCanceled, Outcome(nil, err))
	assert.True(t, fake.closed)
}

// discardStore accepts every write without touching disk.
type discardStore struct {
	store.Store
	inserts int
}

func (d *discardStore) EnsurePolicyTable(context.Context, string) error { return nil }

func (d *discardStore) InsertPolicy(context.Context, string, policy.Record) (int64, error) {
	d.inserts++
	return int64(d.inserts), nil
}

func (d *discardStore) Close() error { return nil }

func TestImport_LogsProgress(t *testing.T) {
	var b strings.Builder
	b.WriteString("Contratante\n")
	for i := 0; i < 2*progressLogEvery+1; i++ {
		b.WriteString("x\n")
	}
	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fake := &discardStore{}
	im := newTestImporter(WithLogger(logger), WithOpener(func(context.Context, string) (store.Store, error) {
		return fake, nil
	}))

	res, err := im.Import(context.Background(), "discard", writeCSV(t, b.String()))
	require.NoError(t, err)
	assert.Equal(t, 2*progressLogEvery+1, res.RowsRead)
	assert.Equal(t, 2*res.RowsRead, fake.inserts)

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, `msg="import progress"`))
	assert.Contains(t, out, "rows_read=1000")
	assert.Contains(t, out, "rows_read=2000")
	assert.Contains(t, out, "progress_pct=")
}

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	inserted int
	failed   int
}

func (r *countingRecorder) ImportStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) ImportFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) RowsProcessed(importInserted, _, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted += importInserted
	r.failed += failed
}

func TestImport_RecordsMetrics(t *testing.T) {
	rec := &countingRecorder{}
	im := newTestImporter(WithRecorder(rec))

	_, err := im.Import(context.Background(), storePath(t), writeCSV(t, "Contratante\nA\nB\n"))
	require.NoError(t, err)
	_, err = im.Import(context.Background(), storePath(t), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)

	assert.Equal(t, 2, rec.started)
	assert.Equal(t, []string{OutcomeSuccess, OutcomeSourceRead}, rec.outcomes)
	assert.Equal(t, 2, rec.inserted)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(&Result{}, nil))
	assert.Equal(t, OutcomePartial, Outcome(&Result{Failed: 1}, nil))
	assert.Equal(t, OutcomeStoreOpen, Outcome(nil, &ImportError{Kind: ErrStoreOpen}))
	assert.Equal(t, OutcomeSchema, Outcome(nil, &ImportError{Kind: ErrSchema}))
	assert.Equal(t, OutcomeSourceRead, Outcome(nil, &ImportError{Kind: ErrSourceRead}))
	assert.Equal(t, OutcomeCanceled, Outcome(nil, context.Canceled))
	assert.Equal(t, OutcomeCanceled, Outcome(nil, &ImportError{Kind: ErrSourceRead, Err: context.DeadlineExceeded}))
	assert.Equal(t, OutcomeError, Outcome(nil, errors.New("boom")))
}

func TestImportError_Message(t *testing.T) {
	err := &ImportError{Kind: ErrSourceRead, Path: "/tmp/x.csv", Line: 7, Err: errors.New("bare quote")}
	assert.Equal(t, "source read failed (/tmp/x.csv) at line 7: bare quote", err.Error())

	err = &ImportError{Kind: ErrSchema, Table: "t", Err: errors.New("locked")}
	assert.Equal(t, "schema error (table t): locked", err.Error())
}
