package domain

import (
	"context"
	"time"
)

// ReportStore defines the interface for quality run persistence.
type ReportStore interface {
	// SaveReport stores a completed quality run report.
	SaveReport(ctx context.Context, report *QualityRunReport) error

	// GetReport retrieves a report by run ID.
	GetReport(ctx context.Context, id string) (*QualityRunReport, error)

	// ListReports returns recent run summaries, newest first.
	ListReports(ctx context.Context, databaseID string, limit int) ([]ReportSummary, error)

	// LatestReport returns the most recent full report for a source.
	LatestReport(ctx context.Context, databaseID string) (*QualityRunReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for report store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver"`

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
