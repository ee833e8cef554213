package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JonMunkholm/policyimport/internal/policy"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// One writer; also keeps PRAGMAs and :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	// The first statement forces the file to be opened (and created).
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return &SQLite{db: db}, nil
}

// EnsurePolicyTable implements Store.
func (s *SQLite) EnsurePolicyTable(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteDialect.createTable(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertPolicy implements Store.
func (s *SQLite) InsertPolicy(ctx context.Context, table string, rec policy.Record) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, sqliteDialect.insert(table), rec.Values()...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// ListPolicies implements Store.
func (s *SQLite) ListPolicies(ctx context.Context, table string) ([]policy.Stored, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqliteDialect.selectAll(table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]policy.Stored, 0)
	for rows.Next() {
		var p policy.Stored
		if err := rows.Scan(p.ScanTargets()...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTables implements Store.
func (s *SQLite) ListTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '\' ORDER BY name`,
		likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
