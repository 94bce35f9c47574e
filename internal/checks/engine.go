package checks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-health/kestrel/internal/cdm"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/score"
)

// EngineVersion is stamped into run metadata.
const EngineVersion = "1.0.0"

var tracer = otel.Tracer("kestrel-checks")

// Engine evaluates the configured rule set against one CDM database
// and produces a scored quality report.
type Engine struct {
	env    *Env
	logger *slog.Logger

	rules  []Rule
	custom []Rule
}

// NewEngine builds the rule set from cfg. Custom check expressions
// are compiled up front so a malformed expression surfaces at startup
// rather than mid-run.
func NewEngine(exec domain.Executor, cfg *domain.ChecksConfig, rowCount RowCountFunc, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := &Env{
		Exec:     exec,
		Q:        cdm.NewQueries(exec.DialectName()),
		Cfg:      cfg,
		RowCount: rowCount,
	}

	custom, err := compileCustomRules(cfg.Custom)
	if err != nil {
		return nil, fmt.Errorf("compile custom checks: %w", err)
	}

	e := &Engine{
		env:    env,
		logger: logger,
		custom: custom,
	}
	e.rules = e.buildRules()
	return e, nil
}

// buildRules assembles the built-in rules in deterministic category
// order, then appends the compiled custom rules.
func (e *Engine) buildRules() []Rule {
	cfg := e.env.Cfg
	var rules []Rule
	rules = append(rules, completenessRules(cfg)...)
	rules = append(rules, temporalRules(cfg)...)
	rules = append(rules, conceptMappingRules(cfg)...)
	rules = append(rules, referentialRules(cfg)...)
	rules = append(rules, statisticalRules(cfg)...)
	rules = append(rules, e.custom...)
	return rules
}

// Rules lists the enabled rule set, grouped for the API.
func (e *Engine) Rules() []Info {
	infos := make([]Info, 0, len(e.rules))
	for _, r := range e.rules {
		if !e.env.Cfg.CategoryEnabled(r.Category) {
			continue
		}
		infos = append(infos, Info{ID: r.ID, Category: r.Category, Description: r.Description})
	}
	return infos
}

// Run evaluates every enabled rule and aggregates the scored report.
// Individual rule failures degrade to ERROR verdicts; Run itself only
// fails on context cancellation.
func (e *Engine) Run(ctx context.Context) (*domain.QualityRunReport, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("cdm.database_id", e.env.Exec.DatabaseID()),
	))
	defer span.End()

	enabled := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if e.env.Cfg.CategoryEnabled(r.Category) {
			enabled = append(enabled, r)
		}
	}

	e.logger.Info("quality run started",
		"database_id", e.env.Exec.DatabaseID(),
		"rules", len(enabled))

	results, err := e.evaluateAll(ctx, enabled)
	if err != nil {
		return nil, err
	}

	report := score.BuildReport(e.env.Exec.DatabaseID(), results, e.env.Cfg)
	report.ID = uuid.NewString()
	report.Metadata = domain.RunMetadata{
		TraceID:             span.SpanContext().TraceID().String(),
		RulesEvaluated:      len(results),
		CategoriesEvaluated: len(report.CategoryResults),
		DurationMs:          time.Since(start).Milliseconds(),
		EngineVersion:       EngineVersion,
	}
	span.SetAttributes(
		attribute.Float64("run.overall_score", report.OverallScore),
		attribute.String("run.grade", string(report.Grade)),
	)

	e.logger.Info("quality run completed",
		"run_id", report.ID,
		"database_id", report.DatabaseID,
		"overall_score", report.OverallScore,
		"grade", report.Grade,
		"duration_ms", report.Metadata.DurationMs)
	return report, nil
}

// RunCategory evaluates a single category, for targeted re-checks.
func (e *Engine) RunCategory(ctx context.Context, cat domain.Category) (*domain.CategoryResult, error) {
	var subset []Rule
	for _, r := range e.rules {
		if r.Category == cat {
			subset = append(subset, r)
		}
	}
	results, err := e.evaluateAll(ctx, subset)
	if err != nil {
		return nil, err
	}
	return score.ScoreCategory(cat, results), nil
}

// evaluateAll runs rules under the configured concurrency model.
// Result order matches rule order either way.
func (e *Engine) evaluateAll(ctx context.Context, rules []Rule) ([]domain.RuleResult, error) {
	timeout := time.Duration(e.env.Cfg.TimeoutPerCheck) * time.Second

	if !e.env.Cfg.ParallelExecution || e.env.Cfg.MaxWorkers <= 1 {
		results := make([]domain.RuleResult, 0, len(rules))
		for _, r := range rules {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results = append(results, e.evaluateOne(ctx, r, timeout))
		}
		return results, nil
	}

	results := make([]domain.RuleResult, len(rules))
	sem := make(chan struct{}, e.env.Cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, r := range rules {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, r Rule) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.evaluateOne(ctx, r, timeout)
		}(i, r)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

func (e *Engine) evaluateOne(ctx context.Context, r Rule, timeout time.Duration) domain.RuleResult {
	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rctx, span := tracer.Start(rctx, "check.evaluate", trace.WithAttributes(
		attribute.String("check.id", r.ID),
		attribute.String("check.category", string(r.Category)),
	))
	defer span.End()

	result := r.evaluate(rctx, e.env)
	span.SetAttributes(attribute.String("check.status", string(result.Status)))

	level := slog.LevelDebug
	if result.Status == domain.StatusFail || result.Status == domain.StatusError {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "check evaluated",
		"rule_id", result.RuleID,
		"status", result.Status,
		"metric", result.MetricValue,
		"process_ms", result.ProcessMs)
	return result
}
