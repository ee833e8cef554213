// Package store persists policy records into relational tables.
//
// Two backends are supported and chosen by the path passed to Open:
//
//   - postgres:// or postgresql:// URLs open a pgx connection pool
//   - anything else is treated as a SQLite database file, created on demand
//
// Both backends create tables with the same layout: an auto-assigned,
// never-reused integer id followed by the policy columns in table order.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/policyimport/internal/policy"
)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

// Store is a handle on one policy database.
type Store interface {
	// EnsurePolicyTable creates the table if it does not exist.
	EnsurePolicyTable(ctx context.Context, table string) error

	// InsertPolicy appends one record and returns its assigned id.
	InsertPolicy(ctx context.Context, table string, rec policy.Record) (int64, error)

	// ListPolicies returns every row of the table ordered by id.
	ListPolicies(ctx context.Context, table string) ([]policy.Stored, error)

	// ListTables returns the names of tables starting with prefix, sorted.
	ListTables(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying connections.
	Close() error
}

// PoolConfig tunes the PostgreSQL connection pool. Zero values keep the pgx
// defaults. SQLite ignores it.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Option configures Open.
type Option func(*options)

type options struct {
	pool        PoolConfig
	busyTimeout time.Duration
}

// WithPool applies connection pool settings to PostgreSQL stores.
func WithPool(cfg PoolConfig) Option {
	return func(o *options) { o.pool = cfg }
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// Open connects to the store at path, creating a SQLite file if needed.
// The connection is verified before Open returns.
func Open(ctx context.Context, path string, opts ...Option) (Store, error) {
	o := options{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if IsPostgresURL(path) {
		pg, err := openPostgres(ctx, path, o.pool)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	lite, err := openSQLite(ctx, path, o.busyTimeout)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// IsPostgresURL reports whether path selects the PostgreSQL backend.
func IsPostgresURL(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTableName reports whether name can be used as a table name.
func ValidTableName(name string) bool {
	return len(name) <= 63 && identRe.MatchString(name)
}

func checkTable(name string) error {
	if !ValidTableName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// likePrefix escapes LIKE wildcards in prefix; pair with ESCAPE '\'.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
