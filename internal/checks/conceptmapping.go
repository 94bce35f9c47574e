package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-health/kestrel/internal/domain"
)

func conceptMappingRules(cfg *domain.ChecksConfig) []Rule {
	var rules []Rule
	for _, f := range cfg.ConceptMapping.ConceptFields {
		rules = append(rules, unmappedRule(f))
		rules = append(rules, standardConceptRule(f))
		rules = append(rules, vocabularyCoverageRule(f))
		rules = append(rules, domainIntegrityRule(f))
	}
	return rules
}

// unmappedRule grades the share of rows carrying the concept_id = 0
// sentinel.
func unmappedRule(f domain.ConceptField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("concept_unmapped_%s", f.Table),
		Category:    domain.CategoryConceptMapping,
		Description: fmt.Sprintf("Unmapped (concept_id = 0) share of %s.%s", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		total, err := env.Exec.ScalarInt(ctx, env.Q.NonNullCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		if total == 0 {
			return errorResult(r, msgNoData)
		}
		unmapped, err := env.Exec.ScalarInt(ctx, env.Q.UnmappedCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		pct := percentage(unmapped, total)
		cm := env.Cfg.ConceptMapping
		return domain.RuleResult{
			Status:       Classify(pct, cm.UnmappedWarning, cm.UnmappedFail, HigherIsWorse),
			MetricValue:  pct,
			AffectedRows: unmapped,
			Message:      fmt.Sprintf("%.2f%% of %s.%s unmapped (%d of %d rows)", pct, f.Table, f.Field, unmapped, total),
		}
	}
	return r
}

// standardConceptRule grades the share of mapped rows resolving to a
// standard concept.
func standardConceptRule(f domain.ConceptField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("concept_standard_%s", f.Table),
		Category:    domain.CategoryConceptMapping,
		Description: fmt.Sprintf("Standard-concept share of mapped %s.%s", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		mapped, err := env.Exec.ScalarInt(ctx, env.Q.MappedJoinedCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		if mapped == 0 {
			return errorResult(r, "no mapped rows to evaluate")
		}
		standard, err := env.Exec.ScalarInt(ctx, env.Q.StandardConceptCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		pct := percentage(standard, mapped)
		threshold := env.Cfg.ConceptMapping.StandardConceptThreshold
		return domain.RuleResult{
			Status:       Classify(pct, threshold, threshold-20, LowerIsWorse),
			MetricValue:  pct,
			AffectedRows: mapped - standard,
			Message:      fmt.Sprintf("%.2f%% of mapped %s.%s are standard concepts (%d of %d)", pct, f.Table, f.Field, standard, mapped),
		}
	}
	return r
}

// vocabularyCoverageRule verifies that mapped concepts come from the
// vocabularies expected for the field's domain. Any usage of an
// unexpected vocabulary warns; a share past the unmapped fail
// threshold fails.
func vocabularyCoverageRule(f domain.ConceptField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("concept_vocab_%s", f.Table),
		Category:    domain.CategoryConceptMapping,
		Description: fmt.Sprintf("Vocabulary coverage of %s.%s", f.Table, f.Field),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		expected, ok := env.Cfg.ConceptMapping.ExpectedVocabularies[f.ExpectedDomain]
		if !ok || len(expected) == 0 {
			return errorResult(r, fmt.Sprintf("no expected vocabularies configured for domain %s", f.ExpectedDomain))
		}
		rows, err := env.Exec.Rows(ctx, env.Q.VocabularyUsage(f.Table, f.Field), 0)
		if err != nil {
			return queryErrorResult(r, err)
		}
		if len(rows) == 0 {
			return errorResult(r, "no mapped rows to evaluate")
		}

		allowed := make(map[string]bool, len(expected))
		for _, v := range expected {
			allowed[v] = true
		}

		var total, unexpected int64
		var offenders []string
		for _, row := range rows {
			vocab, _ := row["vocabulary_id"].(string)
			count := asInt64(row["usage_count"])
			total += count
			if !allowed[vocab] {
				unexpected += count
				offenders = append(offenders, vocab)
			}
		}
		sort.Strings(offenders)

		pct := percentage(unexpected, total)
		status := domain.StatusPass
		switch {
		case pct >= env.Cfg.ConceptMapping.UnmappedFail:
			status = domain.StatusFail
		case unexpected > 0:
			status = domain.StatusWarning
		}

		res := domain.RuleResult{
			Status:       status,
			MetricValue:  pct,
			AffectedRows: unexpected,
		}
		if unexpected > 0 {
			res.Message = fmt.Sprintf("%.2f%% of mapped %s.%s use unexpected vocabularies: %s",
				pct, f.Table, f.Field, strings.Join(offenders, ", "))
		}
		return res
	}
	return r
}

// domainIntegrityRule verifies mapped concepts belong to the domain
// the table implies. Any violation warns; a share past the unmapped
// fail threshold fails.
func domainIntegrityRule(f domain.ConceptField) Rule {
	r := Rule{
		ID:          fmt.Sprintf("concept_domain_%s", f.Table),
		Category:    domain.CategoryConceptMapping,
		Description: fmt.Sprintf("Concepts in %s.%s belong to the %s domain", f.Table, f.Field, f.ExpectedDomain),
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		mapped, err := env.Exec.ScalarInt(ctx, env.Q.MappedJoinedCount(f.Table, f.Field))
		if err != nil {
			return queryErrorResult(r, err)
		}
		if mapped == 0 {
			return errorResult(r, "no mapped rows to evaluate")
		}
		violations, err := env.Exec.ScalarInt(ctx, env.Q.DomainViolationCount(f.Table, f.Field), f.ExpectedDomain)
		if err != nil {
			return queryErrorResult(r, err)
		}

		pct := percentage(violations, mapped)
		status := domain.StatusPass
		switch {
		case pct >= env.Cfg.ConceptMapping.UnmappedFail:
			status = domain.StatusFail
		case violations > 0:
			status = domain.StatusWarning
		}

		res := domain.RuleResult{
			Status:       status,
			MetricValue:  pct,
			AffectedRows: violations,
		}
		if violations > 0 {
			res.Message = fmt.Sprintf("%d mapped rows in %s.%s resolve outside the %s domain (%.2f%%)",
				violations, f.Table, f.Field, f.ExpectedDomain, pct)
		}
		return res
	}
	return r
}
