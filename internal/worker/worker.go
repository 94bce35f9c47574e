// Package worker runs quality checks off the event bus and on a
// schedule.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-health/kestrel/internal/checks"
	"github.com/opensource-health/kestrel/internal/domain"
)

// Worker executes quality runs requested over the EventBus and, when
// an interval is configured, on a fixed schedule.
type Worker struct {
	bus        domain.EventBus
	store      domain.ReportStore
	engine     *checks.Engine
	databaseID string
	interval   time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new run worker. interval <= 0 disables the
// scheduler; runs then happen only on demand.
func NewWorker(bus domain.EventBus, store domain.ReportStore, engine *checks.Engine, databaseID string, interval time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		store:      store,
		engine:     engine,
		databaseID: databaseID,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to run requests and starts the scheduler.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, w.databaseID, domain.TopicRunRequested, w.handleRunRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to run requests: %w", err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	if w.interval > 0 {
		w.wg.Add(1)
		go w.runScheduler()
	}

	slog.Info("worker started",
		"database_id", w.databaseID,
		"scheduled", w.interval > 0,
		"interval", w.interval.String(),
	)

	return nil
}

// runScheduler triggers a quality run every interval until stopped.
func (w *Worker) runScheduler() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.executeRun(w.ctx, uuid.New().String()); err != nil {
				slog.Error("scheduled run failed",
					"database_id", w.databaseID,
					"error", err,
				)
			}
		}
	}
}

// handleRunRequest handles a kestrel.run.requested message.
func (w *Worker) handleRunRequest(ctx context.Context, msg *domain.Message) error {
	var event domain.RunRequestedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	runID := event.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	return w.executeRun(ctx, runID)
}

// executeRun performs one full quality run and publishes its outcome.
func (w *Worker) executeRun(ctx context.Context, runID string) error {
	start := time.Now()

	startPayload, _ := json.Marshal(domain.RunRequestedEvent{RunID: runID})
	if err := w.bus.Publish(ctx, w.databaseID, domain.TopicRunStarted, startPayload); err != nil {
		slog.Error("failed to publish run started",
			"run_id", runID,
			"error", err,
		)
	}

	report, err := w.engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("quality run failed: %w", err)
	}

	// The requester already holds this id; the engine-assigned one is
	// replaced before anything is stored or published.
	report.ID = runID

	if w.store != nil {
		if err := w.store.SaveReport(ctx, report); err != nil {
			slog.Error("failed to save report",
				"run_id", runID,
				"error", err,
			)
		}
	}

	completed, _ := json.Marshal(domain.RunCompletedEvent{
		RunID:        report.ID,
		OverallScore: report.OverallScore,
		Grade:        report.Grade,
	})
	if err := w.bus.Publish(ctx, w.databaseID, domain.TopicRunCompleted, completed); err != nil {
		slog.Error("failed to publish run completed",
			"run_id", runID,
			"error", err,
		)
	}

	if report.Grade == domain.GradePoor || report.Grade == domain.GradeCritical {
		alert, _ := json.Marshal(domain.AlertEvent{
			RunID:        report.ID,
			OverallScore: report.OverallScore,
			Grade:        report.Grade,
			Message:      fmt.Sprintf("data quality graded %s (score %.1f)", report.Grade, report.OverallScore),
		})
		if err := w.bus.Publish(ctx, w.databaseID, domain.TopicAlert, alert); err != nil {
			slog.Error("failed to publish alert",
				"run_id", runID,
				"error", err,
			)
		}
	}

	slog.Info("quality run processed",
		"run_id", report.ID,
		"database_id", w.databaseID,
		"overall_score", report.OverallScore,
		"grade", report.Grade,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
