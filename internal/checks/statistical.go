package checks

import (
	"context"
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

func statisticalRules(cfg *domain.ChecksConfig) []Rule {
	var rules []Rule
	rules = append(rules, ageOutlierRule())
	for _, f := range cfg.Statistical.NumericFields {
		rules = append(rules, numericOutlierRule(f))
		if f.Min != nil || f.Max != nil {
			rules = append(rules, sanityBoundsRule(f))
		}
	}
	rules = append(rules, duplicateRecordRule())
	return rules
}

// ageOutlierRule grades the count of persons outside the plausible
// age window. The temporal category gates on the same population;
// here the count is thresholded rather than zero-tolerance.
func ageOutlierRule() Rule {
	r := Rule{
		ID:          "statistical_age_outliers",
		Category:    domain.CategoryStatistical,
		Description: "Count of persons with outlier ages",
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		tc := env.Cfg.Temporal
		count, err := env.Exec.ScalarInt(ctx, env.Q.ImplausibleAgeCount(tc.MinBirthYear, tc.MaxAge))
		if err != nil {
			return queryErrorResult(r, err)
		}
		sc := env.Cfg.Statistical
		res := domain.RuleResult{
			Status:       Classify(float64(count), float64(sc.OutlierWarning), float64(sc.OutlierFail), HigherIsWorse),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d persons with ages outside [%d, %d]", count, tc.MinBirthYear, tc.MaxAge)
		}
		return res
	}
	return r
}

// numericOutlierRule flags distributional outliers in a numeric
// column using IQR fences and z-scores.
func numericOutlierRule(f domain.NumericField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("statistical_outliers_%s_%s", f.Table, f.Field),
		Category:    domain.CategoryStatistical,
		Description: fmt.Sprintf("Distributional outliers in %s.%s", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		values, err := env.Exec.FloatColumn(ctx, env.Q.NumericValues(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		sc := env.Cfg.Statistical
		if len(values) < sc.MinSampleSize {
			return errorResult(r, fmt.Sprintf("insufficient data: %d values, need %d", len(values), sc.MinSampleSize))
		}
		outliers := countOutliers(values, sc.IQRMultiplier, sc.ZScoreThreshold)
		res := domain.RuleResult{
			Status:       Classify(float64(outliers), float64(sc.OutlierWarning), float64(sc.OutlierFail), HigherIsWorse),
			MetricValue:  float64(outliers),
			AffectedRows: outliers,
		}
		if outliers > 0 {
			res.Message = fmt.Sprintf("%d outliers among %d values of %s.%s", outliers, len(values), f.Table, f.Field)
		}
		return res
	}
	return r
}

// sanityBoundsRule counts values outside fixed physiological bounds,
// independent of the distribution.
func sanityBoundsRule(f domain.NumericField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("statistical_sanity_%s_%s", f.Table, f.Field),
		Category:    domain.CategoryStatistical,
		Description: fmt.Sprintf("Values of %s.%s within sanity bounds", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		var minArg, maxArg any
		if f.Min != nil {
			minArg = *f.Min
		}
		if f.Max != nil {
			maxArg = *f.Max
		}
		count, err := env.Exec.ScalarInt(ctx, env.Q.SanityViolationCount(f.Table, f.Field),
			minArg, minArg, maxArg, maxArg)
		if err != nil {
			return queryErrorResult(r, err)
		}
		sc := env.Cfg.Statistical
		res := domain.RuleResult{
			Status:       Classify(float64(count), float64(sc.OutlierWarning), float64(sc.OutlierFail), HigherIsWorse),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d values of %s.%s outside %s", count, f.Table, f.Field, boundsString(f))
		}
		return res
	}
	return r
}

func boundsString(f domain.NumericField) string {
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("[%g, %g]", *f.Min, *f.Max)
	case f.Min != nil:
		return fmt.Sprintf("[%g, +inf)", *f.Min)
	default:
		return fmt.Sprintf("(-inf, %g]", *f.Max)
	}
}

// duplicateRecordRule counts surplus rows in identical condition
// groups, a common sign of a double-loaded ETL batch.
func duplicateRecordRule() Rule {
	r := Rule{
		ID:          "statistical_duplicates_condition",
		Category:    domain.CategoryStatistical,
		Description: "Duplicate condition_occurrence records",
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		count, err := env.Exec.ScalarInt(ctx, env.Q.DuplicateRecordCount())
		if err != nil {
			return queryErrorResult(r, err)
		}
		sc := env.Cfg.Statistical
		res := domain.RuleResult{
			Status:       Classify(float64(count), float64(sc.OutlierWarning), float64(sc.OutlierFail), HigherIsWorse),
			MetricValue:  float64(count),
			AffectedRows: count,
		}
		if count > 0 {
			res.Message = fmt.Sprintf("%d surplus duplicate condition records", count)
		}
		return res
	}
	return r
}
