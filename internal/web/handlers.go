package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/JonMunkholm/policyimport/internal/policy"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

var errNoFile = errors.New("no file provided")

type uploadResponse struct {
	Message           string        `json:"message"`
	ImportTable       string        `json:"import_table"`
	AggregateTable    string        `json:"aggregate_table"`
	RowsRead          int           `json:"rows_read"`
	ImportInserted    int           `json:"import_inserted"`
	AggregateInserted int           `json:"aggregate_inserted"`
	Failed            int           `json:"failed"`
	Failures          []failureView `json:"failures"`
}

type failureView struct {
	Line  int    `json:"line"`
	Table string `json:"table"`
	Error string `json:"error"`
}

func newUploadResponse(res *core.Result) uploadResponse {
	failures := make([]failureView, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, failureView{Line: f.Line, Table: f.Table, Error: f.Message()})
	}
	return uploadResponse{
		Message:           res.Message(),
		ImportTable:       res.ImportTable,
		AggregateTable:    res.AggregateTable,
		RowsRead:          res.RowsRead,
		ImportInserted:    res.ImportInserted,
		AggregateInserted: res.AggregateInserted,
		Failed:            res.Failed,
		Failures:          failures,
	}
}

type listResponse[T any] struct {
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

// handleUpload stages the uploaded CSV on disk, waits for an import slot and
// runs the import. The import is detached from the request context so a
// client disconnect cannot leave a half-loaded table behind.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, r, fmt.Errorf("parse upload: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	log := logging.WithFields(r.Context(), "filename", header.Filename, "size", header.Size)

	staged, err := s.stage(file)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !s.cfg.Upload.KeepStaged {
		defer func() {
			if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("failed to remove staged upload", "path", staged, "error", err)
			}
		}()
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	defer s.limiter.Release()

	log.Info("upload staged", "path", staged)

	res, err := s.importer.Import(context.WithoutCancel(r.Context()), s.cfg.Store.Path, staged)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, newUploadResponse(res))
}

// stage copies the upload to UPLOAD_DIR/<uuid>.csv and returns its path.
func (s *Server) stage(file multipart.File) (string, error) {
	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.cfg.Upload.Dir, uuid.NewString()+".csv")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	return path, nil
}

// handleListAggregate returns every row of the aggregate table.
func (s *Server) handleListAggregate(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListPolicies(r.Context(), core.AggregateTable)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, listResponse[policy.Stored]{Message: "success", Data: rows})
}

// handleListImports returns the names of all per-import tables, oldest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListTables(r.Context(), core.ImportTablePrefix)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	tables := make([]string, 0, len(names))
	for _, name := range names {
		if core.IsImportTable(name) {
			tables = append(tables, name)
		}
	}
	writeJSON(w, listResponse[string]{Message: "success", Data: tables})
}

// handleListImport returns the rows of one per-import table.
func (s *Server) handleListImport(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !core.IsImportTable(table) {
		writeError(w, http.StatusNotFound, "import table not found")
		return
	}

	rows, err := s.store.ListPolicies(r.Context(), table)
	if err != nil {
		status := http.StatusBadRequest
		if isMissingTable(err) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeJSON(w, listResponse[policy.Stored]{Message: "success", Data: rows})
}

type healthResponse struct {
	Status  string             `json:"status"`
	Imports core.LimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "ok", Imports: s.limiter.Status()})
}
