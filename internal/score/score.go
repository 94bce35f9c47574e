// Package score turns raw rule results into category scores, a
// weighted overall score, and a grade.
package score

import (
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Verdict penalties subtracted from a category's 100-point base.
// ERROR results carry no penalty; they are surfaced through the
// error count instead of silently dragging the score down.
const (
	penaltyWarning = 5
	penaltyFail    = 15
)

// CategoryWeights is the relative importance of each category in the
// overall score. Weights are renormalized over the categories that
// actually produced results, so disabling a category redistributes
// its share instead of deflating the total.
var CategoryWeights = map[domain.Category]float64{
	domain.CategoryCompleteness:   0.30,
	domain.CategoryTemporal:       0.25,
	domain.CategoryConceptMapping: 0.20,
	domain.CategoryReferential:    0.15,
	domain.CategoryStatistical:    0.10,
}

// ScoreCategory aggregates one category's results into a scored
// CategoryResult.
func ScoreCategory(cat domain.Category, results []domain.RuleResult) *domain.CategoryResult {
	cr := &domain.CategoryResult{
		Category:    cat,
		RuleResults: results,
	}
	score := 100.0
	for _, res := range results {
		switch res.Status {
		case domain.StatusPass:
			cr.PassCount++
		case domain.StatusWarning:
			cr.WarningCount++
			score -= penaltyWarning
		case domain.StatusFail:
			cr.FailCount++
			score -= penaltyFail
		case domain.StatusError:
			cr.ErrorCount++
		}
	}
	cr.Score = clamp(score)
	return cr
}

// Overall combines category scores into the weighted overall score.
func Overall(categories map[domain.Category]*domain.CategoryResult) float64 {
	var weighted, totalWeight float64
	for cat, cr := range categories {
		w, ok := CategoryWeights[cat]
		if !ok {
			continue
		}
		weighted += cr.Score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp(weighted / totalWeight)
}

// BuildReport groups rule results by category, scores each, and
// assembles the run report. Results for custom checks land in the
// category their config declares.
func BuildReport(databaseID string, results []domain.RuleResult, cfg *domain.ChecksConfig) *domain.QualityRunReport {
	byCategory := make(map[domain.Category][]domain.RuleResult)
	for _, res := range results {
		byCategory[res.Category] = append(byCategory[res.Category], res)
	}

	categories := make(map[domain.Category]*domain.CategoryResult, len(byCategory))
	for _, cat := range domain.AllCategories() {
		if !cfg.CategoryEnabled(cat) {
			continue
		}
		categories[cat] = ScoreCategory(cat, byCategory[cat])
	}

	overall := Overall(categories)
	return &domain.QualityRunReport{
		DatabaseID:      databaseID,
		RunAt:           time.Now().UTC(),
		CategoryResults: categories,
		OverallScore:    overall,
		Grade:           domain.GradeFor(overall),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
