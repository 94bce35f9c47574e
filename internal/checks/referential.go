package checks

import (
	"context"
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

func referentialRules(cfg *domain.ChecksConfig) []Rule {
	var rules []Rule
	for _, rel := range cfg.Referential.Relationships {
		rules = append(rules, orphanRule(rel))
	}
	return rules
}

// orphanRule counts rows whose reference resolves to nothing in the
// referenced table.
func orphanRule(rel domain.Relationship) Rule {
	r := Rule{
		ID:          fmt.Sprintf("referential_%s_%s", rel.Table, rel.Field),
		Category:    domain.CategoryReferential,
		Description: fmt.Sprintf("%s.%s references resolve in %s", rel.Table, rel.Field, rel.RefTable),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		orphans, err := env.Exec.ScalarInt(ctx, env.Q.OrphanCount(rel))
		if err != nil {
			return queryErrorResult(r, err)
		}
		rc := env.Cfg.Referential
		res := domain.RuleResult{
			Status:       Classify(float64(orphans), float64(rc.OrphanWarning), float64(rc.OrphanFail), HigherIsWorse),
			MetricValue:  float64(orphans),
			AffectedRows: orphans,
		}
		if orphans > 0 {
			res.Message = fmt.Sprintf("%d rows in %s.%s reference missing %s.%s values",
				orphans, rel.Table, rel.Field, rel.RefTable, rel.RefField)
		}
		if res.Status != domain.StatusPass {
			sample, err := env.Exec.Rows(ctx, env.Q.OrphanSample(rel, sampleLimit), sampleLimit)
			if err == nil {
				res.Detail = sample
			}
		}
		return res
	}
	return r
}
