// Package cdm provides read-only access to an OMOP CDM database.
package cdm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-health/kestrel/internal/domain"
)

// ErrQueryTimeout indicates a check query exceeded its time budget.
var ErrQueryTimeout = errors.New("query timed out")

// QueryError wraps a database error reported while executing a check
// query. The underlying driver message is preserved for the report.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Database is a read-only handle on an OMOP CDM source. It implements
// domain.Executor; the underlying *sql.DB pool makes it safe for
// concurrent use by independent check rules.
type Database struct {
	db      *sql.DB
	driver  string
	id      string
	timeout time.Duration
}

// New opens a CDM connection based on configuration. queryTimeout is
// the per-query budget (timeout_per_check).
func New(cfg domain.CDMConfig, queryTimeout time.Duration) (*Database, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "postgres":
		db, err = openPostgres(cfg)
	case "sqlite":
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported CDM driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open CDM database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping CDM database: %w", err)
	}

	id := cfg.DatabaseID
	if id == "" {
		if cfg.Driver == "sqlite" {
			id = cfg.SQLitePath
		} else {
			id = cfg.PostgresDB
		}
	}

	return &Database{
		db:      db,
		driver:  cfg.Driver,
		id:      id,
		timeout: queryTimeout,
	}, nil
}

// NewFromDB wraps an existing connection. Used by tests.
func NewFromDB(db *sql.DB, driver, databaseID string, queryTimeout time.Duration) *Database {
	return &Database{
		db:      db,
		driver:  driver,
		id:      databaseID,
		timeout: queryTimeout,
	}
}

func openPostgres(cfg domain.CDMConfig) (*sql.DB, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, sslMode,
	)
	return sql.Open("postgres", dsn)
}

// DatabaseID identifies the CDM source in reports and cache keys.
func (d *Database) DatabaseID() string { return d.id }

// DialectName returns the SQL dialect of the connection.
func (d *Database) DialectName() string { return d.driver }

// Ping checks connection health.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the connection pool.
func (d *Database) Close() error { return d.db.Close() }

// ScalarInt runs a query returning a single integer value. NULL
// aggregates (e.g. SUM over zero rows) are returned as 0.
func (d *Database) ScalarInt(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var v sql.NullInt64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, d.translate(query, err)
	}
	return v.Int64, nil
}

// ScalarFloat runs a query returning a single numeric value.
func (d *Database) ScalarFloat(ctx context.Context, query string, args ...any) (float64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var v sql.NullFloat64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, d.translate(query, err)
	}
	return v.Float64, nil
}

// FloatColumn returns the first column of every row as float64,
// skipping NULLs.
func (d *Database) FloatColumn(ctx context.Context, query string, args ...any) ([]float64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.translate(query, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, d.translate(query, err)
		}
		if v.Valid {
			values = append(values, v.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, d.translate(query, err)
	}
	return values, nil
}

// Rows returns at most limit rows as column-name keyed maps.
func (d *Database) Rows(ctx context.Context, query string, limit int, args ...any) ([]map[string]any, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.translate(query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, d.translate(query, err)
	}

	var out []map[string]any
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, d.translate(query, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, d.translate(query, err)
	}
	return out, nil
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// translate converts driver errors into the check error taxonomy.
func (d *Database) translate(query string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrQueryTimeout, d.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &QueryError{Query: query, Err: err}
}
