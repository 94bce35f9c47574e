package score

import (
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
)

func results(statuses ...domain.Status) []domain.RuleResult {
	out := make([]domain.RuleResult, len(statuses))
	for i, s := range statuses {
		out[i] = domain.RuleResult{
			RuleID:   "rule",
			Category: domain.CategoryCompleteness,
			Status:   s,
		}
	}
	return out
}

func TestScoreCategoryPenalties(t *testing.T) {
	cr := ScoreCategory(domain.CategoryCompleteness, results(
		domain.StatusPass,
		domain.StatusWarning,
		domain.StatusFail,
		domain.StatusError,
	))

	if cr.Score != 80 {
		t.Errorf("score = %v, want 80 (100 - 5 - 15)", cr.Score)
	}
	if cr.PassCount != 1 || cr.WarningCount != 1 || cr.FailCount != 1 || cr.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 1/1/1/1",
			cr.PassCount, cr.WarningCount, cr.FailCount, cr.ErrorCount)
	}
}

func TestScoreCategoryClampsAtZero(t *testing.T) {
	var statuses []domain.Status
	for i := 0; i < 10; i++ {
		statuses = append(statuses, domain.StatusFail)
	}
	cr := ScoreCategory(domain.CategoryCompleteness, results(statuses...))
	if cr.Score != 0 {
		t.Errorf("score = %v, want 0", cr.Score)
	}
}

func TestScoreCategoryErrorsCarryNoPenalty(t *testing.T) {
	cr := ScoreCategory(domain.CategoryCompleteness, results(
		domain.StatusError, domain.StatusError, domain.StatusPass,
	))
	if cr.Score != 100 {
		t.Errorf("score = %v, want 100", cr.Score)
	}
	if cr.ErrorCount != 2 {
		t.Errorf("error count = %d, want 2", cr.ErrorCount)
	}
}

func TestOverallWeighted(t *testing.T) {
	categories := map[domain.Category]*domain.CategoryResult{
		domain.CategoryCompleteness:   {Score: 100},
		domain.CategoryTemporal:       {Score: 80},
		domain.CategoryConceptMapping: {Score: 100},
		domain.CategoryReferential:    {Score: 100},
		domain.CategoryStatistical:    {Score: 60},
	}

	// 100*.30 + 80*.25 + 100*.20 + 100*.15 + 60*.10 = 91
	got := Overall(categories)
	if got != 91 {
		t.Errorf("overall = %v, want 91", got)
	}
}

func TestOverallRenormalizesOverEnabled(t *testing.T) {
	categories := map[domain.Category]*domain.CategoryResult{
		domain.CategoryCompleteness: {Score: 90},
		domain.CategoryTemporal:     {Score: 90},
	}
	if got := Overall(categories); got != 90 {
		t.Errorf("overall = %v, want 90 after renormalization", got)
	}

	if got := Overall(nil); got != 0 {
		t.Errorf("overall with no categories = %v, want 0", got)
	}
}

func TestBuildReport(t *testing.T) {
	cfg := domain.DefaultChecksConfig()
	rr := []domain.RuleResult{
		{RuleID: "a", Category: domain.CategoryCompleteness, Status: domain.StatusPass},
		{RuleID: "b", Category: domain.CategoryTemporal, Status: domain.StatusFail},
	}

	report := BuildReport("cdm-test", rr, &cfg)
	if report.DatabaseID != "cdm-test" {
		t.Errorf("database id = %q", report.DatabaseID)
	}
	if len(report.CategoryResults) != 5 {
		t.Errorf("categories = %d, want 5 (enabled ones score even without results)", len(report.CategoryResults))
	}
	if report.CategoryResults[domain.CategoryTemporal].Score != 85 {
		t.Errorf("temporal score = %v, want 85", report.CategoryResults[domain.CategoryTemporal].Score)
	}
	if report.Grade != domain.GradeExcellent {
		t.Errorf("grade = %s, want Excellent (overall %.2f)", report.Grade, report.OverallScore)
	}
	if report.RunAt.IsZero() {
		t.Error("run timestamp should be set")
	}
}

func TestGradeBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.Grade
	}{
		{100, domain.GradeExcellent},
		{90, domain.GradeExcellent},
		{89.99, domain.GradeGood},
		{80, domain.GradeGood},
		{70, domain.GradeFair},
		{60, domain.GradePoor},
		{59.99, domain.GradeCritical},
		{0, domain.GradeCritical},
	}
	for _, tc := range cases {
		if got := domain.GradeFor(tc.score); got != tc.want {
			t.Errorf("GradeFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
