package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/policyimport/internal/policy"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, url string, cfg PoolConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// EnsurePolicyTable implements Store.
func (p *Postgres) EnsurePolicyTable(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, postgresDialect.createTable(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertPolicy implements Store.
func (p *Postgres) InsertPolicy(ctx context.Context, table string, rec policy.Record) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	var id int64
	if err := p.pool.QueryRow(ctx, postgresDialect.insert(table), rec.Values()...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// ListPolicies implements Store.
func (p *Postgres) ListPolicies(ctx context.Context, table string) ([]policy.Stored, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, postgresDialect.selectAll(table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (policy.Stored, error) {
		var s policy.Stored
		err := row.Scan(s.ScanTargets()...)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return out, nil
}

// ListTables implements Store.
func (p *Postgres) ListTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name LIKE $1 ESCAPE '\'
		 ORDER BY table_name`,
		likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
