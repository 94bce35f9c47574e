package domain

import (
	"time"
)

// RuleResult is the outcome of a single check rule. Immutable once
// produced; the engine merges results only after all rules complete.
type RuleResult struct {
	RuleID   string   `json:"ruleId"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`

	// MetricValue is the number the verdict was derived from
	// (a percentage or a count, depending on the rule).
	MetricValue float64 `json:"metricValue"`

	// AffectedRows is the number of offending records.
	AffectedRows int64 `json:"affectedRows"`

	// Detail optionally carries a small sample of offending rows.
	Detail []map[string]any `json:"detail,omitempty"`

	Message   string `json:"message"`
	ProcessMs int64  `json:"processMs"`
}

// CategoryResult aggregates the rule results of one category.
// Derived by the scorer, never constructed by callers.
type CategoryResult struct {
	Category    Category     `json:"category"`
	Score       float64      `json:"score"` // 0..100
	RuleResults []RuleResult `json:"ruleResults"`

	PassCount    int `json:"passCount"`
	WarningCount int `json:"warningCount"`
	FailCount    int `json:"failCount"`
	ErrorCount   int `json:"errorCount"`
}

// Grade classifies an overall score.
type Grade string

const (
	GradeExcellent Grade = "Excellent" // >= 90
	GradeGood      Grade = "Good"      // >= 80
	GradeFair      Grade = "Fair"      // >= 70
	GradePoor      Grade = "Poor"      // >= 60
	GradeCritical  Grade = "Critical"
)

// GradeFor maps an overall score to its grade.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 80:
		return GradeGood
	case score >= 70:
		return GradeFair
	case score >= 60:
		return GradePoor
	default:
		return GradeCritical
	}
}

// RunMetadata carries processing information for a quality run.
type RunMetadata struct {
	TraceID             string `json:"traceId,omitempty"`
	RulesEvaluated      int    `json:"rulesEvaluated"`
	CategoriesEvaluated int    `json:"categoriesEvaluated"`
	DurationMs          int64  `json:"durationMs"`
	EngineVersion       string `json:"engineVersion"`
}

// QualityRunReport is the aggregate output of one quality run.
// Read-only after creation; persistence is a collaborator's job.
type QualityRunReport struct {
	ID         string    `json:"id"`
	DatabaseID string    `json:"databaseId"`
	RunAt      time.Time `json:"runAt"`

	CategoryResults map[Category]*CategoryResult `json:"categoryResults"`

	OverallScore float64 `json:"overallScore"` // 0..100
	Grade        Grade   `json:"grade"`

	Metadata RunMetadata `json:"metadata"`
}

// ReportSummary is the list-view projection of a stored report.
type ReportSummary struct {
	ID           string    `json:"id"`
	DatabaseID   string    `json:"databaseId"`
	RunAt        time.Time `json:"runAt"`
	OverallScore float64   `json:"overallScore"`
	Grade        Grade     `json:"grade"`
}

// Summary returns the list-view projection of the report.
func (r *QualityRunReport) Summary() ReportSummary {
	return ReportSummary{
		ID:           r.ID,
		DatabaseID:   r.DatabaseID,
		RunAt:        r.RunAt,
		OverallScore: r.OverallScore,
		Grade:        r.Grade,
	}
}

// CountsByStatus returns total rule counts across all categories.
func (r *QualityRunReport) CountsByStatus() (pass, warning, fail, errs int) {
	for _, cr := range r.CategoryResults {
		pass += cr.PassCount
		warning += cr.WarningCount
		fail += cr.FailCount
		errs += cr.ErrorCount
	}
	return
}
