package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

func sampleReport(id string, runAt time.Time, score float64) *domain.QualityRunReport {
	return &domain.QualityRunReport{
		ID:         id,
		DatabaseID: "cdm-main",
		RunAt:      runAt,
		CategoryResults: map[domain.Category]*domain.CategoryResult{
			domain.CategoryCompleteness: {
				Category: domain.CategoryCompleteness,
				Score:    score,
				RuleResults: []domain.RuleResult{
					{RuleID: "completeness_person_demographics", Category: domain.CategoryCompleteness, Status: domain.StatusPass, MetricValue: 98.5},
				},
				PassCount: 1,
			},
		},
		OverallScore: score,
		Grade:        domain.GradeFor(score),
		Metadata: domain.RunMetadata{
			TraceID:        "trace-001",
			RulesEvaluated: 1,
			EngineVersion:  "1.0.0",
		},
	}
}

func TestSQLiteStore(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		report := sampleReport("run-001", time.Now().UTC().Add(-time.Hour), 92.5)

		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		retrieved, err := store.GetReport(ctx, "run-001")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}

		if retrieved.ID != report.ID {
			t.Errorf("expected ID %s, got %s", report.ID, retrieved.ID)
		}
		if retrieved.OverallScore != report.OverallScore {
			t.Errorf("expected score %.2f, got %.2f", report.OverallScore, retrieved.OverallScore)
		}
		if retrieved.Grade != domain.GradeExcellent {
			t.Errorf("expected grade Excellent, got %s", retrieved.Grade)
		}

		comp, ok := retrieved.CategoryResults[domain.CategoryCompleteness]
		if !ok {
			t.Fatal("completeness results missing after round trip")
		}
		if len(comp.RuleResults) != 1 || comp.RuleResults[0].RuleID != "completeness_person_demographics" {
			t.Errorf("rule results lost: %+v", comp.RuleResults)
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("metadata lost: %+v", retrieved.Metadata)
		}
	})

	t.Run("LatestReport", func(t *testing.T) {
		newer := sampleReport("run-002", time.Now().UTC(), 88)
		if err := store.SaveReport(ctx, newer); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		latest, err := store.LatestReport(ctx, "cdm-main")
		if err != nil {
			t.Fatalf("LatestReport failed: %v", err)
		}
		if latest.ID != "run-002" {
			t.Errorf("expected latest run-002, got %s", latest.ID)
		}
	})

	t.Run("ListReports", func(t *testing.T) {
		summaries, err := store.ListReports(ctx, "cdm-main", 10)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("expected 2 summaries, got %d", len(summaries))
		}
		if summaries[0].ID != "run-002" {
			t.Errorf("summaries should be newest first, got %s", summaries[0].ID)
		}

		limited, err := store.ListReports(ctx, "cdm-main", 1)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected limit of 1, got %d", len(limited))
		}

		other, err := store.ListReports(ctx, "cdm-other", 10)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("expected no runs for other source, got %d", len(other))
		}
	})

	t.Run("RequiresIdentifiers", func(t *testing.T) {
		if err := store.SaveReport(ctx, &domain.QualityRunReport{DatabaseID: "x"}); err == nil {
			t.Error("expected error for missing run ID")
		}
		if err := store.SaveReport(ctx, &domain.QualityRunReport{ID: "x"}); err == nil {
			t.Error("expected error for missing database ID")
		}
		if _, err := store.LatestReport(ctx, ""); err == nil {
			t.Error("expected error for empty databaseID")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := store.GetReport(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := store.LatestReport(ctx, "cdm-empty"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	store := &SQLStore{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := store.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
