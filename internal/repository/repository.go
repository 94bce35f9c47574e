// Package repository persists quality run reports.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.ReportStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new report store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.ReportStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a completed quality run report. Category results
// and metadata are stored as JSON documents; the scalar columns exist
// for listing and filtering.
func (s *SQLStore) SaveReport(ctx context.Context, report *domain.QualityRunReport) error {
	if report.ID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}
	if report.DatabaseID == "" {
		return fmt.Errorf("%w: database ID is required", ErrInvalidInput)
	}

	categories, err := json.Marshal(report.CategoryResults)
	if err != nil {
		return fmt.Errorf("failed to encode category results: %w", err)
	}
	metadata, _ := json.Marshal(report.Metadata)

	query := `
		INSERT INTO quality_runs (
			id, database_id, run_at, overall_score, grade,
			category_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		report.ID, report.DatabaseID, report.RunAt,
		report.OverallScore, string(report.Grade),
		string(categories), string(metadata),
	)
	return err
}

// GetReport retrieves a report by run ID.
func (s *SQLStore) GetReport(ctx context.Context, id string) (*domain.QualityRunReport, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, database_id, run_at, overall_score, grade,
			   category_results, metadata
		FROM quality_runs
		WHERE id = ?
	`
	return s.scanReport(s.db.QueryRowContext(ctx, s.rebind(query), id))
}

// LatestReport returns the most recent full report for a source.
func (s *SQLStore) LatestReport(ctx context.Context, databaseID string) (*domain.QualityRunReport, error) {
	if databaseID == "" {
		return nil, fmt.Errorf("%w: databaseID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, database_id, run_at, overall_score, grade,
			   category_results, metadata
		FROM quality_runs
		WHERE database_id = ?
		ORDER BY run_at DESC
		LIMIT 1
	`
	return s.scanReport(s.db.QueryRowContext(ctx, s.rebind(query), databaseID))
}

// ListReports returns recent run summaries, newest first. An empty
// databaseID lists runs across all sources.
func (s *SQLStore) ListReports(ctx context.Context, databaseID string, limit int) ([]domain.ReportSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, database_id, run_at, overall_score, grade
		FROM quality_runs
	`
	args := []any{}
	if databaseID != "" {
		query += " WHERE database_id = ?"
		args = append(args, databaseID)
	}
	query += " ORDER BY run_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ReportSummary
	for rows.Next() {
		var sum domain.ReportSummary
		var grade string
		if err := rows.Scan(&sum.ID, &sum.DatabaseID, &sum.RunAt, &sum.OverallScore, &grade); err != nil {
			return nil, err
		}
		sum.Grade = domain.Grade(grade)
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

func (s *SQLStore) scanReport(row *sql.Row) (*domain.QualityRunReport, error) {
	var report domain.QualityRunReport
	var grade, categories, metadata string

	err := row.Scan(
		&report.ID, &report.DatabaseID, &report.RunAt,
		&report.OverallScore, &grade, &categories, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	report.Grade = domain.Grade(grade)
	if err := json.Unmarshal([]byte(categories), &report.CategoryResults); err != nil {
		return nil, fmt.Errorf("failed to parse category results for %s: %w", report.ID, err)
	}
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
