package checks

import (
	"context"
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

func temporalRules(cfg *domain.ChecksConfig) []Rule {
	var rules []Rule
	for _, f := range cfg.Temporal.DateFields {
		rules = append(rules, futureDateRule(f))
	}
	for _, p := range cfg.Temporal.ChronologyPairs {
		rules = append(rules, chronologyRule(p))
	}
	for _, t := range cfg.Temporal.EventTables {
		rules = append(rules, eventsAfterDeathRule(t))
		rules = append(rules, eventsBeforeBirthRule(t))
	}
	rules = append(rules, birthDeathConsistencyRule())
	rules = append(rules, agePlausibilityRule())
	return rules
}

// futureDateRule fails on clinical dates past today plus the
// configured tolerance.
func futureDateRule(f domain.FieldRef) Rule {
	r := Rule{
		ID:          fmt.Sprintf("temporal_future_%s_%s", f.Table, f.Field),
		Category:    domain.CategoryTemporal,
		Description: fmt.Sprintf("No future dates in %s.%s", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.FutureDateCount(f.Table, f.Field, env.Cfg.Temporal.FutureDateToleranceDays))
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(count),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d rows in %s have a future %s", count, f.Table, f.Field)
		}
		return res
	}
	return r
}

// chronologyRule fails when an end date precedes its start date.
func chronologyRule(p domain.ChronologyPair) Rule {
	r := Rule{
		ID:          fmt.Sprintf("temporal_chronology_%s", p.Table),
		Category:    domain.CategoryTemporal,
		Description: fmt.Sprintf("%s.%s never precedes %s", p.Table, p.EndField, p.StartField),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.ChronologyViolationCount(p))
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(count),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d rows in %s end before they start", count, p.Table)
		}
		return res
	}
	return r
}

// eventsAfterDeathRule counts clinical events recorded after the
// person's death date. Small counts are tolerated as administrative
// trailing records.
func eventsAfterDeathRule(t domain.EventTable) Rule {
	r := Rule{
		ID:          fmt.Sprintf("temporal_after_death_%s", t.Table),
		Category:    domain.CategoryTemporal,
		Description: fmt.Sprintf("Events in %s after the person's death", t.Table),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.EventsAfterDeathCount(t))
		if err != nil {
			return queryErrorResult(r, err)
		}
		tc := env.Cfg.Temporal
		res := domain.RuleResult{
			Status:       Classify(float64(count), float64(tc.EventCountWarning), float64(tc.EventCountFail), HigherIsWorse),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d events in %s dated after death", count, t.Table)
		}
		return res
	}
	return r
}

// eventsBeforeBirthRule fails on any clinical event dated before the
// person's birth.
func eventsBeforeBirthRule(t domain.EventTable) Rule {
	r := Rule{
		ID:          fmt.Sprintf("temporal_before_birth_%s", t.Table),
		Category:    domain.CategoryTemporal,
		Description: fmt.Sprintf("Events in %s before the person's birth", t.Table),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.EventsBeforeBirthCount(t))
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(count),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d events in %s dated before birth", count, t.Table)
		}
		return res
	}
	return r
}

// birthDeathConsistencyRule fails when a death date precedes the
// person's birth.
func birthDeathConsistencyRule() Rule {
	r := Rule{
		ID:          "temporal_birth_death",
		Category:    domain.CategoryTemporal,
		Description: "Death dates never precede birth",
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.BirthDeathViolationCount())
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(count),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d persons have a death date before their birth", count)
		}
		return res
	}
	return r
}

// agePlausibilityRule fails on any person whose age falls outside the
// plausible window. The same population feeds the statistical outlier
// rule with graded thresholds; here implausibility is a hard error in
// the source data.
func agePlausibilityRule() Rule {
	r := Rule{
		ID:          "temporal_age_plausibility",
		Category:    domain.CategoryTemporal,
		Description: "Person ages within the plausible range",
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		tc := env.Cfg.Temporal
		count, err := env.Exec.ScalarInt(ctx, env.Q.ImplausibleAgeCount(tc.MinBirthYear, tc.MaxAge))
		if err != nil {
			return queryErrorResult(r, err)
		}
		res := domain.RuleResult{
			Status:       gate(count),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d persons outside the plausible age range (max age %d, earliest birth year %d)",
				count, tc.MaxAge, tc.MinBirthYear)
			sample, err := env.Exec.Rows(ctx, env.Q.ImplausibleAgeSample(tc.MinBirthYear, tc.MaxAge, sampleLimit), sampleLimit)
			if err == nil {
				res.Detail = sample
			}
		}
		return res
	}
	return r
}
