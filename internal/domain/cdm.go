// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Executor runs read-only aggregate queries against the OMOP CDM.
// Implementations own per-query timeouts and error translation; they
// must be safe for concurrent use from independent check rules.
type Executor interface {
	// ScalarInt runs a query returning a single integer value.
	ScalarInt(ctx context.Context, query string, args ...any) (int64, error)

	// ScalarFloat runs a query returning a single numeric value.
	ScalarFloat(ctx context.Context, query string, args ...any) (float64, error)

	// FloatColumn returns the first column of every row as float64,
	// skipping NULLs.
	FloatColumn(ctx context.Context, query string, args ...any) ([]float64, error)

	// Rows returns at most limit rows as column-name keyed maps.
	Rows(ctx context.Context, query string, limit int, args ...any) ([]map[string]any, error)

	// DatabaseID identifies the CDM source in reports and cache keys.
	DatabaseID() string

	// DialectName is the SQL dialect: "postgres" or "sqlite".
	DialectName() string

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CDMConfig holds connection settings for the OMOP CDM database.
type CDMConfig struct {
	// Driver is the database driver: "postgres" or "sqlite"
	Driver string `json:"driver"`

	// DatabaseID labels this source in reports; defaults to the
	// database name.
	DatabaseID string `json:"databaseId"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"postgresPassword"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}
