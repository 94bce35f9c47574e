package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/bus"
	"github.com/opensource-health/kestrel/internal/checks"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/repository"
)

// cannedExec answers every aggregate query with a fixed count.
type cannedExec struct {
	count int64
}

func (e *cannedExec) ScalarInt(ctx context.Context, query string, args ...any) (int64, error) {
	return e.count, nil
}

func (e *cannedExec) ScalarFloat(ctx context.Context, query string, args ...any) (float64, error) {
	return float64(e.count), nil
}

func (e *cannedExec) FloatColumn(ctx context.Context, query string, args ...any) ([]float64, error) {
	return nil, nil
}

func (e *cannedExec) Rows(ctx context.Context, query string, limit int, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func (e *cannedExec) DatabaseID() string             { return "test-cdm" }
func (e *cannedExec) DialectName() string            { return "sqlite" }
func (e *cannedExec) Ping(ctx context.Context) error { return nil }
func (e *cannedExec) Close() error                   { return nil }

func referentialConfig(relationships int) domain.ChecksConfig {
	cfg := domain.ChecksConfig{
		ParallelExecution: false,
		TimeoutPerCheck:   30,
		Referential: domain.ReferentialConfig{
			Enabled:       true,
			OrphanWarning: 100,
			OrphanFail:    1000,
		},
	}
	tables := []string{"condition_occurrence", "drug_exposure", "visit_occurrence"}
	for i := 0; i < relationships; i++ {
		cfg.Referential.Relationships = append(cfg.Referential.Relationships, domain.Relationship{
			Table: tables[i], Field: "person_id", RefTable: "person", RefField: "person_id",
		})
	}
	return cfg
}

func newTestEngine(t *testing.T, exec domain.Executor, cfg domain.ChecksConfig) *checks.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := checks.NewEngine(exec, &cfg, func(ctx context.Context, table string) (int64, error) {
		return 100, nil
	}, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func newTestStore(t *testing.T) domain.ReportStore {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create report store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		engine := newTestEngine(t, &cannedExec{}, referentialConfig(1))
		worker := NewWorker(eventBus, nil, engine, "test-cdm", 0)

		if err := worker.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicRunRequested {
			t.Errorf("expected subscription to %s, got %v", domain.TopicRunRequested, stats.Topics)
		}

		if err := worker.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})

	t.Run("RunRequestProducesReport", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		store := newTestStore(t)
		engine := newTestEngine(t, &cannedExec{}, referentialConfig(1))
		worker := NewWorker(eventBus, store, engine, "test-cdm", 0)

		var completed atomic.Bool
		var event domain.RunCompletedEvent

		eventBus.Subscribe(ctx, "test-cdm", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
			json.Unmarshal(msg.Payload, &event)
			completed.Store(true)
			return nil
		})

		if err := worker.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		time.Sleep(10 * time.Millisecond)

		payload, _ := json.Marshal(domain.RunRequestedEvent{RunID: "run-123"})
		if err := eventBus.Publish(ctx, "test-cdm", domain.TopicRunRequested, payload); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		deadline := time.After(2 * time.Second)
		for !completed.Load() {
			select {
			case <-deadline:
				t.Fatal("timeout waiting for run completion")
			case <-time.After(10 * time.Millisecond):
			}
		}

		if event.RunID != "run-123" {
			t.Errorf("expected run id run-123, got %s", event.RunID)
		}
		if event.OverallScore != 100 {
			t.Errorf("expected overall score 100, got %.2f", event.OverallScore)
		}
		if event.Grade != domain.GradeExcellent {
			t.Errorf("expected grade Excellent, got %s", event.Grade)
		}

		// The report is persisted under the requested id.
		report, err := store.GetReport(ctx, "run-123")
		if err != nil {
			t.Fatalf("stored report not found: %v", err)
		}
		if report.OverallScore != 100 {
			t.Errorf("expected stored score 100, got %.2f", report.OverallScore)
		}
	})

	t.Run("AlertOnPoorGrade", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		// Three failing relationships drop the referential score to 55.
		engine := newTestEngine(t, &cannedExec{count: 5000}, referentialConfig(3))
		worker := NewWorker(eventBus, nil, engine, "test-cdm", 0)

		var alerted atomic.Bool
		var alert domain.AlertEvent

		eventBus.Subscribe(ctx, "test-cdm", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			json.Unmarshal(msg.Payload, &alert)
			alerted.Store(true)
			return nil
		})

		if err := worker.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		time.Sleep(10 * time.Millisecond)

		payload, _ := json.Marshal(domain.RunRequestedEvent{RunID: "run-bad"})
		eventBus.Publish(ctx, "test-cdm", domain.TopicRunRequested, payload)

		deadline := time.After(2 * time.Second)
		for !alerted.Load() {
			select {
			case <-deadline:
				t.Fatal("timeout waiting for alert")
			case <-time.After(10 * time.Millisecond):
			}
		}

		if alert.Grade != domain.GradeCritical {
			t.Errorf("expected grade Critical, got %s", alert.Grade)
		}
		if alert.RunID != "run-bad" {
			t.Errorf("expected run id run-bad, got %s", alert.RunID)
		}
		if alert.Message == "" {
			t.Error("expected alert message")
		}
	})

	t.Run("ScheduledRuns", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		engine := newTestEngine(t, &cannedExec{}, referentialConfig(1))
		worker := NewWorker(eventBus, nil, engine, "test-cdm", 50*time.Millisecond)

		var completions atomic.Int32
		eventBus.Subscribe(ctx, "test-cdm", domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
			completions.Add(1)
			return nil
		})

		if err := worker.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		deadline := time.After(2 * time.Second)
		for completions.Load() < 2 {
			select {
			case <-deadline:
				t.Fatalf("timeout: got %d scheduled completions", completions.Load())
			case <-time.After(20 * time.Millisecond):
			}
		}
	})
}
