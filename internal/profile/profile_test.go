package profile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/cache"
)

// countingExec returns canned row counts and records how many queries
// actually reached the database.
type countingExec struct {
	counts  map[string]int64
	queries int
	err     error
}

func (e *countingExec) ScalarInt(ctx context.Context, query string, args ...any) (int64, error) {
	e.queries++
	if e.err != nil {
		return 0, e.err
	}
	for table, count := range e.counts {
		if query == fmt.Sprintf("SELECT COUNT(*) FROM %s", table) {
			return count, nil
		}
	}
	return 0, nil
}

func (e *countingExec) ScalarFloat(ctx context.Context, query string, args ...any) (float64, error) {
	return 0, nil
}

func (e *countingExec) FloatColumn(ctx context.Context, query string, args ...any) ([]float64, error) {
	return nil, nil
}

func (e *countingExec) Rows(ctx context.Context, query string, limit int, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func (e *countingExec) DatabaseID() string            { return "test-cdm" }
func (e *countingExec) DialectName() string           { return "sqlite" }
func (e *countingExec) Ping(ctx context.Context) error { return nil }
func (e *countingExec) Close() error                  { return nil }

func TestRowCount(t *testing.T) {
	ctx := context.Background()

	t.Run("CountsFromDatabase", func(t *testing.T) {
		exec := &countingExec{counts: map[string]int64{"person": 1200}}
		svc := NewService(exec, nil, 0)

		count, err := svc.RowCount(ctx, "person")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 1200 {
			t.Errorf("expected 1200 rows, got %d", count)
		}
	})

	t.Run("CachesCount", func(t *testing.T) {
		exec := &countingExec{counts: map[string]int64{"person": 1200}}
		lru := cache.NewLRUCache(100)
		defer lru.Close()

		svc := NewService(exec, lru, time.Minute)

		for i := 0; i < 3; i++ {
			count, err := svc.RowCount(ctx, "person")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if count != 1200 {
				t.Errorf("expected 1200 rows, got %d", count)
			}
		}

		if exec.queries != 1 {
			t.Errorf("expected 1 database query, got %d", exec.queries)
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		exec := &countingExec{counts: map[string]int64{"person": 1200}}
		lru := cache.NewLRUCache(100)
		defer lru.Close()

		svc := NewService(exec, lru, time.Minute)

		svc.RowCount(ctx, "person")
		if err := svc.Invalidate(ctx, "person"); err != nil {
			t.Fatalf("invalidate failed: %v", err)
		}
		svc.RowCount(ctx, "person")

		if exec.queries != 2 {
			t.Errorf("expected 2 database queries after invalidation, got %d", exec.queries)
		}
	})

	t.Run("Counts", func(t *testing.T) {
		exec := &countingExec{counts: map[string]int64{
			"person":               1200,
			"condition_occurrence": 50000,
		}}
		svc := NewService(exec, nil, 0)

		counts, err := svc.Counts(ctx, []string{"person", "condition_occurrence"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts["person"] != 1200 {
			t.Errorf("expected person count 1200, got %d", counts["person"])
		}
		if counts["condition_occurrence"] != 50000 {
			t.Errorf("expected condition_occurrence count 50000, got %d", counts["condition_occurrence"])
		}
	})

	t.Run("RequiresTable", func(t *testing.T) {
		svc := NewService(&countingExec{}, nil, 0)
		if _, err := svc.RowCount(ctx, ""); err == nil {
			t.Error("expected error for empty table")
		}
	})

	t.Run("QueryError", func(t *testing.T) {
		exec := &countingExec{err: fmt.Errorf("connection refused")}
		svc := NewService(exec, nil, 0)

		if _, err := svc.RowCount(ctx, "person"); err == nil {
			t.Error("expected error from database")
		}
	})

	t.Run("Getter", func(t *testing.T) {
		exec := &countingExec{counts: map[string]int64{"person": 1200}}
		svc := NewService(exec, nil, 0)

		getter := svc.Getter()
		if getter == nil {
			t.Fatal("Getter returned nil")
		}
		count, err := getter(ctx, "person")
		if err != nil {
			t.Fatalf("getter failed: %v", err)
		}
		if count != 1200 {
			t.Errorf("expected 1200 rows, got %d", count)
		}
	})
}
