package checks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
)

func TestCriticalFieldRule(t *testing.T) {
	exec := newFakeExec()
	env := testEnv(exec, 1000)
	rule := criticalFieldRule(domain.FieldRef{Table: "condition_occurrence", Field: "person_id"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusPass {
		t.Errorf("no nulls should pass, got %s", res.Status)
	}

	exec.scalars["person_id IS NULL"] = 3
	res = rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusFail {
		t.Errorf("nulls in a required field should fail, got %s", res.Status)
	}
	if res.AffectedRows != 3 {
		t.Errorf("affected rows = %d, want 3", res.AffectedRows)
	}
}

func TestCriticalFieldRuleEmptyTable(t *testing.T) {
	exec := newFakeExec()
	env := testEnv(exec, 0)
	rule := criticalFieldRule(domain.FieldRef{Table: "condition_occurrence", Field: "person_id"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusError {
		t.Fatalf("empty table should yield ERROR, got %s", res.Status)
	}
	if res.Message != msgNoData {
		t.Errorf("message = %q, want %q", res.Message, msgNoData)
	}
}

func TestNullPercentageRuleBands(t *testing.T) {
	rule := nullPercentageRule(domain.FieldRef{Table: "person", Field: "gender_concept_id"})

	cases := []struct {
		nulls int64
		want  domain.Status
	}{
		{0, domain.StatusPass},
		{99, domain.StatusPass},     // 9.9%
		{100, domain.StatusWarning}, // exactly at 10%
		{249, domain.StatusWarning},
		{250, domain.StatusFail}, // exactly at 25%
	}
	for _, tc := range cases {
		exec := newFakeExec()
		exec.scalars["gender_concept_id IS NULL"] = tc.nulls
		env := testEnv(exec, 1000)
		res := rule.evaluate(context.Background(), env)
		if res.Status != tc.want {
			t.Errorf("nulls=%d: status = %s, want %s", tc.nulls, res.Status, tc.want)
		}
	}
}

func TestPersonDemographicsRule(t *testing.T) {
	exec := newFakeExec()
	exec.rows["missing_gender"] = []map[string]any{{
		"total_persons":      int64(100),
		"missing_gender":     int64(0),
		"missing_birth_year": int64(0),
		"missing_race":       int64(0),
		"missing_ethnicity":  int64(0),
	}}
	env := testEnv(exec, 100)
	rule := personDemographicsRule()

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusPass {
		t.Errorf("complete demographics should pass, got %s: %s", res.Status, res.Message)
	}
	if res.MetricValue != 100 {
		t.Errorf("score = %v, want 100", res.MetricValue)
	}

	// half the persons missing race and ethnicity: score drops to 80
	exec.rows["missing_gender"] = []map[string]any{{
		"total_persons":      int64(100),
		"missing_gender":     int64(0),
		"missing_birth_year": int64(0),
		"missing_race":       int64(50),
		"missing_ethnicity":  int64(50),
	}}
	res = rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusWarning {
		t.Errorf("degraded demographics should warn, got %s", res.Status)
	}
}

func TestFutureDateRule(t *testing.T) {
	exec := newFakeExec()
	exec.scalars["date(visit_start_date) >"] = 2
	env := testEnv(exec, 100)
	rule := futureDateRule(domain.FieldRef{Table: "visit_occurrence", Field: "visit_start_date"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusFail {
		t.Errorf("future dates should fail, got %s", res.Status)
	}
}

func TestEventsAfterDeathThresholds(t *testing.T) {
	rule := eventsAfterDeathRule(domain.EventTable{Table: "visit_occurrence", DateField: "visit_start_date"})

	cases := []struct {
		count int64
		want  domain.Status
	}{
		{0, domain.StatusPass},
		{9, domain.StatusPass},
		{10, domain.StatusWarning},
		{50, domain.StatusFail},
	}
	for _, tc := range cases {
		exec := newFakeExec()
		exec.scalars["JOIN death"] = tc.count
		env := testEnv(exec, 100)
		res := rule.evaluate(context.Background(), env)
		if res.Status != tc.want {
			t.Errorf("count=%d: status = %s, want %s", tc.count, res.Status, tc.want)
		}
	}
}

func TestAgePlausibilityGate(t *testing.T) {
	exec := newFakeExec()
	exec.scalars["year_of_birth"] = 1
	exec.rows["year_of_birth"] = []map[string]any{{"person_id": int64(7), "year_of_birth": int64(1850)}}
	env := testEnv(exec, 100)

	res := agePlausibilityRule().evaluate(context.Background(), env)
	if res.Status != domain.StatusFail {
		t.Errorf("implausible age should fail outright, got %s", res.Status)
	}
	if len(res.Detail) != 1 {
		t.Errorf("expected offending sample in detail, got %d rows", len(res.Detail))
	}

	// the statistical twin tolerates small counts
	stat := ageOutlierRule().evaluate(context.Background(), env)
	if stat.Status != domain.StatusPass {
		t.Errorf("1 outlier is below the statistical warning threshold, got %s", stat.Status)
	}
}

func TestUnmappedRule(t *testing.T) {
	exec := newFakeExec()
	exec.scalars["condition_concept_id IS NOT NULL"] = 1000
	exec.scalars["condition_concept_id = 0"] = 60 // 6%
	env := testEnv(exec, 1000)
	rule := unmappedRule(domain.ConceptField{Table: "condition_occurrence", Field: "condition_concept_id", ExpectedDomain: "Condition"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusWarning {
		t.Errorf("6%% unmapped should warn, got %s", res.Status)
	}
	if res.MetricValue != 6 {
		t.Errorf("metric = %v, want 6", res.MetricValue)
	}
}

func TestStandardConceptRule(t *testing.T) {
	exec := newFakeExec()
	exec.scalars["JOIN concept"] = 200
	exec.scalars["standard_concept = 'S'"] = 150 // 75%
	env := testEnv(exec, 1000)
	rule := standardConceptRule(domain.ConceptField{Table: "condition_occurrence", Field: "condition_concept_id", ExpectedDomain: "Condition"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusWarning {
		t.Errorf("75%% standard should warn at an 80%% threshold, got %s", res.Status)
	}
}

func TestVocabularyCoverageRule(t *testing.T) {
	field := domain.ConceptField{Table: "condition_occurrence", Field: "condition_concept_id", ExpectedDomain: "Condition"}

	exec := newFakeExec()
	exec.rows["vocabulary_id"] = []map[string]any{
		{"vocabulary_id": "SNOMED", "usage_count": int64(950)},
		{"vocabulary_id": "Read", "usage_count": int64(50)},
	}
	env := testEnv(exec, 1000)

	res := vocabularyCoverageRule(field).evaluate(context.Background(), env)
	if res.Status != domain.StatusWarning {
		t.Errorf("unexpected vocabulary should warn, got %s", res.Status)
	}
	if !strings.Contains(res.Message, "Read") {
		t.Errorf("message should name the offending vocabulary: %q", res.Message)
	}

	// no expected list configured for the domain
	env.Cfg.ConceptMapping.ExpectedVocabularies = nil
	res = vocabularyCoverageRule(field).evaluate(context.Background(), env)
	if res.Status != domain.StatusError {
		t.Errorf("missing vocabulary config should yield ERROR, got %s", res.Status)
	}
}

func TestOrphanRuleThresholds(t *testing.T) {
	rel := domain.Relationship{Table: "condition_occurrence", Field: "person_id", RefTable: "person", RefField: "person_id"}

	cases := []struct {
		orphans int64
		want    domain.Status
	}{
		{0, domain.StatusPass},
		{1, domain.StatusPass},
		{100, domain.StatusWarning},
		{1000, domain.StatusFail},
	}
	for _, tc := range cases {
		exec := newFakeExec()
		exec.scalars["NOT EXISTS"] = tc.orphans
		exec.rows["orphan_value"] = []map[string]any{{"orphan_value": int64(99), "row_count": tc.orphans}}
		env := testEnv(exec, 1000)
		res := orphanRule(rel).evaluate(context.Background(), env)
		if res.Status != tc.want {
			t.Errorf("orphans=%d: status = %s, want %s", tc.orphans, res.Status, tc.want)
		}
		if tc.want != domain.StatusPass && len(res.Detail) == 0 {
			t.Errorf("orphans=%d: expected sample detail", tc.orphans)
		}
	}
}

func TestNumericOutlierRuleInsufficientData(t *testing.T) {
	exec := newFakeExec()
	exec.columns["value_as_number"] = []float64{1, 2, 3}
	env := testEnv(exec, 1000)
	rule := numericOutlierRule(domain.NumericField{Table: "measurement", Field: "value_as_number"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusError {
		t.Fatalf("3 values below min sample size should yield ERROR, got %s", res.Status)
	}
	if !strings.Contains(res.Message, "insufficient data") {
		t.Errorf("message = %q, want insufficient data", res.Message)
	}
}

func TestNumericOutlierRule(t *testing.T) {
	exec := newFakeExec()
	exec.columns["value_as_number"] = []float64{5, 5, 6, 4, 5, 6, 4, 5, 5, 5, 6, 900}
	env := testEnv(exec, 1000)
	rule := numericOutlierRule(domain.NumericField{Table: "measurement", Field: "value_as_number"})

	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusPass {
		t.Errorf("1 outlier is below the warning threshold, got %s", res.Status)
	}
	if res.AffectedRows != 1 {
		t.Errorf("affected = %d, want 1", res.AffectedRows)
	}
}

func TestSanityBoundsRule(t *testing.T) {
	minVal, maxVal := 0.0, 365.0
	field := domain.NumericField{Table: "drug_exposure", Field: "days_supply", Min: &minVal, Max: &maxVal}

	exec := newFakeExec()
	exec.scalars["days_supply <"] = 60
	env := testEnv(exec, 1000)

	res := sanityBoundsRule(field).evaluate(context.Background(), env)
	if res.Status != domain.StatusFail {
		t.Errorf("60 violations should fail at a 50 threshold, got %s", res.Status)
	}
}

func TestQueryErrorBecomesErrorResult(t *testing.T) {
	exec := newFakeExec()
	exec.err = errors.New("relation does not exist")
	env := testEnv(exec, 1000)

	rule := unmappedRule(domain.ConceptField{Table: "condition_occurrence", Field: "condition_concept_id"})
	res := rule.evaluate(context.Background(), env)
	if res.Status != domain.StatusError {
		t.Fatalf("query error should yield ERROR, got %s", res.Status)
	}
	if !strings.Contains(res.Message, "relation does not exist") {
		t.Errorf("message should carry the database error: %q", res.Message)
	}
}
