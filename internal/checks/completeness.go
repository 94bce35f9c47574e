package checks

import (
	"context"
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Demographic weights for the per-person completeness score. Gender
// and birth year carry more weight than race and ethnicity, which are
// frequently unrecorded even in otherwise clean sources.
const (
	weightGender    = 0.30
	weightBirthYear = 0.30
	weightRace      = 0.20
	weightEthnicity = 0.20
)

func completenessRules(cfg *domain.ChecksConfig) []Rule {
	var rules []Rule
	for _, f := range cfg.Completeness.CriticalFields {
		rules = append(rules, criticalFieldRule(f))
	}
	for _, f := range cfg.Completeness.TableFields {
		rules = append(rules, nullPercentageRule(f))
	}
	rules = append(rules, personDemographicsRule())
	return rules
}

// criticalFieldRule fails on any NULL in a field the CDM requires.
func criticalFieldRule(f domain.FieldRef) Rule {
	r := Rule{
		ID:          fmt.Sprintf("completeness_critical_%s_%s", f.Table, f.Field),
		Category:    domain.CategoryCompleteness,
		Description: fmt.Sprintf("Required field %s.%s must never be NULL", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		total, err := env.RowCount(ctx, f.Table)
		if err != nil {
			return queryErrorResult(r, err)
		}
		if total == 0 {
			return errorResult(r, msgNoData)
		}
		nulls, err := env.Exec.ScalarInt(ctx, env.Q.NullCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(nulls),
			MetricValue:  float64(nulls),
			AffectedRows: nulls,
		}
		if nulls > 0 {
			res.Message = fmt.Sprintf("%d NULL values in required field %s.%s", nulls, f.Table, f.Field)
		}
		return res
	}
	return r
}

// nullPercentageRule grades the NULL share of an expected-populated
// field against the configured warning/fail percentages.
func nullPercentageRule(f domain.FieldRef) Rule {
	r := Rule{
		ID:          fmt.Sprintf("completeness_null_pct_%s_%s", f.Table, f.Field),
		Category:    domain.CategoryCompleteness,
		Description: fmt.Sprintf("NULL percentage of %s.%s within tolerance", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		total, err := env.RowCount(ctx, f.Table)
		if err != nil {
			return queryErrorResult(r, err)
		}
		if total == 0 {
			return errorResult(r, msgNoData)
		}
		nulls, err := env.Exec.ScalarInt(ctx, env.Q.NullCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		pct := percentage(nulls, total)
		cc := env.Cfg.Completeness
		return domain.RuleResult{
			Status:       Classify(pct, cc.TableCompletenessWarning, cc.TableCompletenessFail, HigherIsWorse),
			MetricValue:  pct,
			AffectedRows: nulls,
			Message:      fmt.Sprintf("%.2f%% NULL in %s.%s (%d of %d rows)", pct, f.Table, f.Field, nulls, total),
		}
	}
	return r
}

// personDemographicsRule computes a weighted completeness score over
// the person table's demographic fields. Zero concept IDs count as
// missing alongside NULLs.
func personDemographicsRule() Rule {
	r := Rule{
		ID:          "completeness_person_demographics",
		Category:    domain.CategoryCompleteness,
		Description: "Weighted demographic completeness of the person table",
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		rows, err := env.Exec.Rows(ctx, env.Q.PersonDemographics(), 1)
		if err != nil {
			return queryErrorResult(r, err)
		}
		if len(rows) == 0 {
			return errorResult(r, msgNoData)
		}
		row := rows[0]
		total := asInt64(row["total_persons"])
		if total == 0 {
			return errorResult(r, msgNoData)
		}

		completeness := func(missingCol string) float64 {
			return 100 - percentage(asInt64(row[missingCol]), total)
		}
		scoreVal := weightGender*completeness("missing_gender") +
			weightBirthYear*completeness("missing_birth_year") +
			weightRace*completeness("missing_race") +
			weightEthnicity*completeness("missing_ethnicity")

		pass := env.Cfg.Completeness.PersonCompletenessPass
		return domain.RuleResult{
			Status:      Classify(scoreVal, pass, pass-10, LowerIsWorse),
			MetricValue: scoreVal,
			Message: fmt.Sprintf("demographic completeness %.2f%% across %d persons (gender %.1f%%, birth year %.1f%%, race %.1f%%, ethnicity %.1f%%)",
				scoreVal, total,
				completeness("missing_gender"), completeness("missing_birth_year"),
				completeness("missing_race"), completeness("missing_ethnicity")),
		}
	}
	return r
}
