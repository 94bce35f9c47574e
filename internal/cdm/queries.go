package cdm

import (
	"fmt"
	"strings"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Queries builds the OMOP check SQL for a given dialect. Table and
// field names come from validated configuration; only values travel
// as placeholders.
type Queries struct {
	dialect string
}

// NewQueries returns a query builder for the dialect ("postgres" or
// "sqlite").
func NewQueries(dialect string) Queries {
	return Queries{dialect: dialect}
}

// Rebind converts ? placeholders to the dialect's format.
func (q Queries) Rebind(query string) string {
	if q.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// currentDatePlus renders "today + n days" as a date expression.
func (q Queries) currentDatePlus(days int) string {
	if q.dialect == "sqlite" {
		return fmt.Sprintf("date('now', '+%d day')", days)
	}
	return fmt.Sprintf("CURRENT_DATE + %d", days)
}

// currentYear renders the current calendar year as an integer.
func (q Queries) currentYear() string {
	if q.dialect == "sqlite" {
		return "CAST(strftime('%Y', 'now') AS INTEGER)"
	}
	return "EXTRACT(YEAR FROM CURRENT_DATE)"
}

// birthDate derives a person's birth date from year/month/day parts,
// defaulting missing month and day to 1.
func (q Queries) birthDate(alias string) string {
	if q.dialect == "sqlite" {
		return fmt.Sprintf(
			"date(printf('%%04d-%%02d-%%02d', %[1]s.year_of_birth, COALESCE(%[1]s.month_of_birth, 1), COALESCE(%[1]s.day_of_birth, 1)))",
			alias,
		)
	}
	return fmt.Sprintf(
		"MAKE_DATE(%[1]s.year_of_birth, COALESCE(%[1]s.month_of_birth, 1), COALESCE(%[1]s.day_of_birth, 1))",
		alias,
	)
}

// dateExpr normalizes a date column for comparison.
func (q Queries) dateExpr(col string) string {
	if q.dialect == "sqlite" {
		return fmt.Sprintf("date(%s)", col)
	}
	return col
}

// RowCount counts all rows in a table.
func (q Queries) RowCount(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
}

// NullCount counts rows where the field is null.
func (q Queries) NullCount(table, field string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, field)
}

// NonNullCount counts rows where the field is present.
func (q Queries) NonNullCount(table, field string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL", table, field)
}

// PersonDemographics returns per-field missing counts for the person
// table's demographic columns.
func (q Queries) PersonDemographics() string {
	return `SELECT
	COUNT(*) AS total_persons,
	SUM(CASE WHEN gender_concept_id IS NULL OR gender_concept_id = 0 THEN 1 ELSE 0 END) AS missing_gender,
	SUM(CASE WHEN year_of_birth IS NULL THEN 1 ELSE 0 END) AS missing_birth_year,
	SUM(CASE WHEN race_concept_id IS NULL OR race_concept_id = 0 THEN 1 ELSE 0 END) AS missing_race,
	SUM(CASE WHEN ethnicity_concept_id IS NULL OR ethnicity_concept_id = 0 THEN 1 ELSE 0 END) AS missing_ethnicity
FROM person`
}

// FutureDateCount counts rows dated beyond today plus the tolerance.
func (q Queries) FutureDateCount(table, field string, toleranceDays int) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s > %s",
		table, field, q.dateExpr(field), q.currentDatePlus(toleranceDays),
	)
}

// ChronologyViolationCount counts rows whose end date precedes the
// start date. Rows with a null on either side are excluded.
func (q Queries) ChronologyViolationCount(p domain.ChronologyPair) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL AND %s < %s",
		p.Table, p.StartField, p.EndField, q.dateExpr(p.EndField), q.dateExpr(p.StartField),
	)
}

// EventsAfterDeathCount counts clinical events dated after the
// person's death date.
func (q Queries) EventsAfterDeathCount(t domain.EventTable) string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
JOIN death d ON t.person_id = d.person_id
WHERE t.%[2]s IS NOT NULL AND d.death_date IS NOT NULL AND %[3]s > %[4]s`,
		t.Table, t.DateField, q.dateExpr("t."+t.DateField), q.dateExpr("d.death_date"),
	)
}

// EventsBeforeBirthCount counts clinical events dated before the
// person's derived birth date.
func (q Queries) EventsBeforeBirthCount(t domain.EventTable) string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
JOIN person p ON t.person_id = p.person_id
WHERE t.%[2]s IS NOT NULL AND p.year_of_birth IS NOT NULL AND %[3]s < %[4]s`,
		t.Table, t.DateField, q.dateExpr("t."+t.DateField), q.birthDate("p"),
	)
}

// BirthDeathViolationCount counts persons whose death date precedes
// their derived birth date.
func (q Queries) BirthDeathViolationCount() string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM person p
JOIN death d ON p.person_id = d.person_id
WHERE p.year_of_birth IS NOT NULL AND d.death_date IS NOT NULL AND %s < %s`,
		q.dateExpr("d.death_date"), q.birthDate("p"),
	)
}

// implausibleAgeWhere is the shared predicate for the age rules.
func (q Queries) implausibleAgeWhere(minBirthYear, maxAge int) string {
	year := q.currentYear()
	return fmt.Sprintf(
		`year_of_birth IS NOT NULL AND (
	year_of_birth < %d
	OR year_of_birth > %s
	OR (%s - year_of_birth) > %d
	OR (%s - year_of_birth) < 0
)`,
		minBirthYear, year, year, maxAge, year,
	)
}

// ImplausibleAgeCount counts persons with an impossible birth year or
// implied age.
func (q Queries) ImplausibleAgeCount(minBirthYear, maxAge int) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM person WHERE %s",
		q.implausibleAgeWhere(minBirthYear, maxAge),
	)
}

// ImplausibleAgeSample returns offending person rows for the report
// detail.
func (q Queries) ImplausibleAgeSample(minBirthYear, maxAge, limit int) string {
	return fmt.Sprintf(
		`SELECT person_id, year_of_birth, %s - year_of_birth AS implied_age
FROM person WHERE %s
ORDER BY year_of_birth LIMIT %d`,
		q.currentYear(), q.implausibleAgeWhere(minBirthYear, maxAge), limit,
	)
}

// UnmappedCount counts rows carrying the concept_id = 0 sentinel.
func (q Queries) UnmappedCount(table, field string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = 0", table, field)
}

// MappedJoinedCount counts mapped rows whose concept join succeeds.
// Dangling references are skipped here; they belong to referential.
func (q Queries) MappedJoinedCount(table, field string) string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
JOIN concept c ON t.%[2]s = c.concept_id
WHERE t.%[2]s != 0`,
		table, field,
	)
}

// StandardConceptCount counts mapped rows resolved to a standard
// concept.
func (q Queries) StandardConceptCount(table, field string) string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
JOIN concept c ON t.%[2]s = c.concept_id
WHERE t.%[2]s != 0 AND c.standard_concept = 'S'`,
		table, field,
	)
}

// VocabularyUsage returns mapped-row counts per vocabulary for a
// concept-bearing column.
func (q Queries) VocabularyUsage(table, field string) string {
	return fmt.Sprintf(
		`SELECT c.vocabulary_id AS vocabulary_id, COUNT(*) AS usage_count
FROM %[1]s t
JOIN concept c ON t.%[2]s = c.concept_id
WHERE t.%[2]s != 0
GROUP BY c.vocabulary_id
ORDER BY usage_count DESC`,
		table, field,
	)
}

// DomainViolationCount counts mapped rows whose concept belongs to a
// different domain than the table expects. The expected domain_id is
// bound as a parameter.
func (q Queries) DomainViolationCount(table, field string) string {
	return q.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
JOIN concept c ON t.%[2]s = c.concept_id
WHERE t.%[2]s != 0 AND c.domain_id != ?`,
		table, field,
	))
}

// OrphanCount counts rows referencing a value absent from the
// referenced table. Concept references exclude the 0 sentinel.
func (q Queries) OrphanCount(rel domain.Relationship) string {
	sentinel := ""
	if rel.ConceptRef {
		sentinel = fmt.Sprintf(" AND t.%s != 0", rel.Field)
	}
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s t
WHERE t.%[2]s IS NOT NULL%[5]s
AND NOT EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[4]s = t.%[2]s)`,
		rel.Table, rel.Field, rel.RefTable, rel.RefField, sentinel,
	)
}

// OrphanSample returns offending reference values for the report
// detail.
func (q Queries) OrphanSample(rel domain.Relationship, limit int) string {
	sentinel := ""
	if rel.ConceptRef {
		sentinel = fmt.Sprintf(" AND t.%s != 0", rel.Field)
	}
	return fmt.Sprintf(
		`SELECT t.%[2]s AS orphan_value, COUNT(*) AS row_count FROM %[1]s t
WHERE t.%[2]s IS NOT NULL%[5]s
AND NOT EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[4]s = t.%[2]s)
GROUP BY t.%[2]s
ORDER BY row_count DESC LIMIT %[6]d`,
		rel.Table, rel.Field, rel.RefTable, rel.RefField, sentinel, limit,
	)
}

// NumericValues returns all non-null values of a numeric column.
func (q Queries) NumericValues(table, field string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL", field, table, field)
}

// SanityViolationCount counts values outside fixed physiological
// bounds. Bounds are bound as parameters; pass min then max, using
// NULL to skip a side.
func (q Queries) SanityViolationCount(table, field string) string {
	return q.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s
WHERE %[2]s IS NOT NULL
AND ((? IS NOT NULL AND %[2]s < ?) OR (? IS NOT NULL AND %[2]s > ?))`,
		table, field,
	))
}

// DuplicateRecordCount counts surplus rows in identical
// (person, concept, start date) condition groups.
func (q Queries) DuplicateRecordCount() string {
	return `SELECT COALESCE(SUM(dup_count - 1), 0) FROM (
	SELECT COUNT(*) AS dup_count
	FROM condition_occurrence
	GROUP BY person_id, condition_concept_id, condition_start_date
	HAVING COUNT(*) > 1
) dups`
}
