package domain

// Category identifies a quality check category.
type Category string

const (
	CategoryCompleteness   Category = "completeness"
	CategoryTemporal       Category = "temporal"
	CategoryConceptMapping Category = "concept_mapping"
	CategoryReferential    Category = "referential"
	CategoryStatistical    Category = "statistical"
)

// AllCategories returns the categories in report order.
func AllCategories() []Category {
	return []Category{
		CategoryCompleteness,
		CategoryTemporal,
		CategoryConceptMapping,
		CategoryReferential,
		CategoryStatistical,
	}
}

// Status is the verdict of a single check rule.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusFail    Status = "FAIL"
	StatusError   Status = "ERROR"
)

// FieldRef names a (table, field) pair in the CDM schema.
type FieldRef struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// ChronologyPair names a start/end date pair that must be ordered.
type ChronologyPair struct {
	Table      string `json:"table"`
	StartField string `json:"startField"`
	EndField   string `json:"endField"`
}

// EventTable names a clinical table with a person reference and its
// event date field, used by the death/birth consistency rules.
type EventTable struct {
	Table     string `json:"table"`
	DateField string `json:"dateField"`
}

// ConceptField names a concept-bearing column and the domain_id its
// concepts are expected to carry.
type ConceptField struct {
	Table          string `json:"table"`
	Field          string `json:"field"`
	ExpectedDomain string `json:"expectedDomain"`
}

// Relationship describes a foreign-key-like reference between tables.
type Relationship struct {
	Table    string `json:"table"`
	Field    string `json:"field"`
	RefTable string `json:"refTable"`
	RefField string `json:"refField"`

	// ConceptRef marks concept_id references where 0 is the
	// intentionally-unmapped sentinel, excluded from orphan counts.
	ConceptRef bool `json:"conceptRef,omitempty"`
}

// NumericField names a numeric column checked for outliers, with
// optional physiological sanity bounds.
type NumericField struct {
	Table string   `json:"table"`
	Field string   `json:"field"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// CustomCheckConfig defines a site-specific check: a scalar SQL query
// plus a CEL expression over its result. The expression must evaluate
// to a bool; false means the check failed.
type CustomCheckConfig struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Query       string   `json:"query"`
	Expression  string   `json:"expression"`
	Enabled     bool     `json:"enabled"`
}

// CompletenessConfig parametrizes the completeness category.
type CompletenessConfig struct {
	Enabled bool `json:"enabled"`

	// CriticalFields must never be null; any null row fails.
	CriticalFields []FieldRef `json:"criticalFields"`

	// TableFields are thresholded by null percentage.
	TableFields []FieldRef `json:"tableFields"`

	TableCompletenessWarning float64 `json:"tableCompletenessWarning"` // percent
	TableCompletenessFail    float64 `json:"tableCompletenessFail"`    // percent
	PersonCompletenessPass   float64 `json:"personCompletenessPass"`   // percent
}

// TemporalConfig parametrizes the temporal consistency category.
type TemporalConfig struct {
	Enabled bool `json:"enabled"`

	DateFields      []FieldRef       `json:"dateFields"`
	ChronologyPairs []ChronologyPair `json:"chronologyPairs"`
	EventTables     []EventTable     `json:"eventTables"`

	FutureDateToleranceDays int `json:"futureDateToleranceDays"`
	MaxAge                  int `json:"maxAge"`
	MinBirthYear            int `json:"minBirthYear"`

	// Thresholds for events-after-death counts.
	EventCountWarning int64 `json:"eventCountWarning"`
	EventCountFail    int64 `json:"eventCountFail"`
}

// ConceptMappingConfig parametrizes the concept-mapping category.
type ConceptMappingConfig struct {
	Enabled bool `json:"enabled"`

	ConceptFields []ConceptField `json:"conceptFields"`

	UnmappedWarning          float64 `json:"unmappedWarning"`          // percent
	UnmappedFail             float64 `json:"unmappedFail"`             // percent
	StandardConceptThreshold float64 `json:"standardConceptThreshold"` // percent

	// ExpectedVocabularies maps a domain_id to the vocabulary_ids
	// expected to serve it.
	ExpectedVocabularies map[string][]string `json:"expectedVocabularies"`
}

// ReferentialConfig parametrizes the referential integrity category.
type ReferentialConfig struct {
	Enabled bool `json:"enabled"`

	Relationships []Relationship `json:"relationships"`

	OrphanWarning int64 `json:"orphanWarning"`
	OrphanFail    int64 `json:"orphanFail"`
}

// StatisticalConfig parametrizes the statistical outlier category.
type StatisticalConfig struct {
	Enabled bool `json:"enabled"`

	NumericFields []NumericField `json:"numericFields"`

	IQRMultiplier   float64 `json:"iqrMultiplier"`
	ZScoreThreshold float64 `json:"zscoreThreshold"`
	MinSampleSize   int     `json:"minSampleSize"`

	OutlierWarning int64 `json:"outlierWarning"`
	OutlierFail    int64 `json:"outlierFail"`
}

// ChecksConfig is the full, resolved quality-check configuration.
// It is loaded once at startup and never mutated during a run.
type ChecksConfig struct {
	ParallelExecution bool `json:"parallelExecution"`
	MaxWorkers        int  `json:"maxWorkers"`
	TimeoutPerCheck   int  `json:"timeoutPerCheck"` // seconds

	Completeness   CompletenessConfig   `json:"completeness"`
	Temporal       TemporalConfig       `json:"temporal"`
	ConceptMapping ConceptMappingConfig `json:"conceptMapping"`
	Referential    ReferentialConfig    `json:"referential"`
	Statistical    StatisticalConfig    `json:"statistical"`

	Custom []CustomCheckConfig `json:"custom,omitempty"`
}

// CategoryEnabled reports whether the given category is enabled.
func (c *ChecksConfig) CategoryEnabled(cat Category) bool {
	switch cat {
	case CategoryCompleteness:
		return c.Completeness.Enabled
	case CategoryTemporal:
		return c.Temporal.Enabled
	case CategoryConceptMapping:
		return c.ConceptMapping.Enabled
	case CategoryReferential:
		return c.Referential.Enabled
	case CategoryStatistical:
		return c.Statistical.Enabled
	}
	return false
}

func fptr(v float64) *float64 { return &v }

// DefaultChecksConfig returns the standard OMOP CDM check
// configuration: key fields and relationships of the core clinical
// tables with the documented default thresholds.
func DefaultChecksConfig() ChecksConfig {
	return ChecksConfig{
		ParallelExecution: true,
		MaxWorkers:        4,
		TimeoutPerCheck:   300,

		Completeness: CompletenessConfig{
			Enabled: true,
			CriticalFields: []FieldRef{
				{Table: "condition_occurrence", Field: "person_id"},
				{Table: "condition_occurrence", Field: "condition_concept_id"},
				{Table: "drug_exposure", Field: "drug_exposure_start_date"},
				{Table: "visit_occurrence", Field: "person_id"},
				{Table: "visit_occurrence", Field: "visit_concept_id"},
			},
			TableFields: []FieldRef{
				{Table: "person", Field: "gender_concept_id"},
				{Table: "person", Field: "year_of_birth"},
				{Table: "condition_occurrence", Field: "condition_start_date"},
				{Table: "drug_exposure", Field: "drug_concept_id"},
				{Table: "measurement", Field: "measurement_date"},
				{Table: "observation", Field: "observation_date"},
			},
			TableCompletenessWarning: 10,
			TableCompletenessFail:    25,
			PersonCompletenessPass:   90,
		},

		Temporal: TemporalConfig{
			Enabled: true,
			DateFields: []FieldRef{
				{Table: "condition_occurrence", Field: "condition_start_date"},
				{Table: "drug_exposure", Field: "drug_exposure_start_date"},
				{Table: "visit_occurrence", Field: "visit_start_date"},
				{Table: "measurement", Field: "measurement_date"},
				{Table: "observation", Field: "observation_date"},
				{Table: "death", Field: "death_date"},
			},
			ChronologyPairs: []ChronologyPair{
				{Table: "visit_occurrence", StartField: "visit_start_date", EndField: "visit_end_date"},
				{Table: "condition_occurrence", StartField: "condition_start_date", EndField: "condition_end_date"},
				{Table: "drug_exposure", StartField: "drug_exposure_start_date", EndField: "drug_exposure_end_date"},
			},
			EventTables: []EventTable{
				{Table: "condition_occurrence", DateField: "condition_start_date"},
				{Table: "drug_exposure", DateField: "drug_exposure_start_date"},
				{Table: "visit_occurrence", DateField: "visit_start_date"},
			},
			FutureDateToleranceDays: 0,
			MaxAge:                  120,
			MinBirthYear:            1900,
			EventCountWarning:       10,
			EventCountFail:          50,
		},

		ConceptMapping: ConceptMappingConfig{
			Enabled: true,
			ConceptFields: []ConceptField{
				{Table: "condition_occurrence", Field: "condition_concept_id", ExpectedDomain: "Condition"},
				{Table: "drug_exposure", Field: "drug_concept_id", ExpectedDomain: "Drug"},
				{Table: "measurement", Field: "measurement_concept_id", ExpectedDomain: "Measurement"},
				{Table: "observation", Field: "observation_concept_id", ExpectedDomain: "Observation"},
			},
			UnmappedWarning:          5,
			UnmappedFail:             15,
			StandardConceptThreshold: 80,
			ExpectedVocabularies: map[string][]string{
				"Condition":   {"SNOMED", "ICD10CM", "ICD9CM"},
				"Drug":        {"RxNorm", "RxNorm Extension", "NDC"},
				"Measurement": {"LOINC", "SNOMED"},
				"Observation": {"SNOMED", "LOINC"},
			},
		},

		Referential: ReferentialConfig{
			Enabled: true,
			Relationships: []Relationship{
				{Table: "condition_occurrence", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "drug_exposure", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "visit_occurrence", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "measurement", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "observation", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "death", Field: "person_id", RefTable: "person", RefField: "person_id"},
				{Table: "condition_occurrence", Field: "condition_concept_id", RefTable: "concept", RefField: "concept_id", ConceptRef: true},
				{Table: "drug_exposure", Field: "drug_concept_id", RefTable: "concept", RefField: "concept_id", ConceptRef: true},
				{Table: "measurement", Field: "measurement_concept_id", RefTable: "concept", RefField: "concept_id", ConceptRef: true},
			},
			OrphanWarning: 100,
			OrphanFail:    1000,
		},

		Statistical: StatisticalConfig{
			Enabled: true,
			NumericFields: []NumericField{
				{Table: "drug_exposure", Field: "quantity", Min: fptr(0), Max: fptr(10000)},
				{Table: "drug_exposure", Field: "days_supply", Min: fptr(0), Max: fptr(365)},
				{Table: "measurement", Field: "value_as_number"},
			},
			IQRMultiplier:   1.5,
			ZScoreThreshold: 3,
			MinSampleSize:   10,
			OutlierWarning:  10,
			OutlierFail:     50,
		},
	}
}
