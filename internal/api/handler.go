package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-health/kestrel/internal/checks"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/repository"
)

// reportCacheTTL bounds how long a fetched report is served from
// cache before falling back to the store.
const reportCacheTTL = 10 * time.Minute

// defaultListLimit caps GET /runs when no limit is given.
const defaultListLimit = 20

// Handler holds dependencies for API handlers.
type Handler struct {
	store   domain.ReportStore
	cache   domain.Cache
	bus     domain.EventBus
	cdm     domain.Executor
	engine  *checks.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.ReportStore, cache domain.Cache, bus domain.EventBus, cdm domain.Executor, engine *checks.Engine, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		cdm:     cdm,
		engine:  engine,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// The monitored CDM must answer for runs to work at all.
	if h.cdm != nil {
		if err := h.cdm.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// TriggerRun handles POST /runs. The default mode runs all checks
// synchronously and returns the full report; mode=async publishes a
// run request on the bus and returns 202 with the run id the worker
// will use.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("mode") == "async" {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}

		runID := uuid.New().String()
		payload, _ := json.Marshal(domain.RunRequestedEvent{RunID: runID})
		if err := h.bus.Publish(ctx, h.cdm.DatabaseID(), domain.TopicRunRequested, payload); err != nil {
			slog.Error("failed to publish run request", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to request run",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":  runID,
			"status": "accepted",
		})
		return
	}

	report, err := h.engine.Run(ctx)
	if err != nil {
		slog.Error("quality run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "quality run failed",
		})
		return
	}

	// Persistence failures do not invalidate the run; the report is
	// still returned to the caller.
	if h.store != nil {
		if err := h.store.SaveReport(ctx, report); err != nil {
			slog.Error("failed to save report", "run_id", report.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetReport(ctx, report.DatabaseID, report.ID, report, reportCacheTTL); err != nil {
			slog.Error("failed to cache report", "run_id", report.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// GetRun retrieves a stored report by run ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.cache != nil {
		if report, err := h.cache.GetReport(ctx, h.cdm.DatabaseID(), runID); err == nil && report != nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "report store not available",
		})
		return
	}

	report, err := h.store.GetReport(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
			return
		}
		slog.Error("failed to get report", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get run",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetReport(ctx, report.DatabaseID, report.ID, report, reportCacheTTL)
	}

	writeJSON(w, http.StatusOK, report)
}

// ListRuns returns recent run summaries, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "report store not available",
		})
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListReports(ctx, h.cdm.DatabaseID(), limit)
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListChecks enumerates the registered check rules per category.
func (h *Handler) ListChecks(w http.ResponseWriter, r *http.Request) {
	infos := h.engine.Rules()

	byCategory := make(map[domain.Category][]checks.Info)
	for _, info := range infos {
		byCategory[info.Category] = append(byCategory[info.Category], info)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checks": byCategory,
		"count":  len(infos),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
