// Package config loads Kestrel configuration from file and
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/opensource-health/kestrel/internal/domain"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "kestrel.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "kestrel.yml"

// EnvPrefix scopes the environment variable overrides.
const EnvPrefix = "KESTREL_"

// Load builds the configuration in priority order: defaults, then the
// config file, then KESTREL_* environment variables. An empty path
// searches the working directory for kestrel.yaml / kestrel.yml; a
// missing file there is not an error.
func Load(path string) (*domain.Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = findConfigFile(".")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	// KESTREL_SERVER_PORT=9090 overrides server.port. Key matching at
	// unmarshal time is case-insensitive.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := domain.DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// identRe matches safe SQL identifiers. Configured table and field
// names are interpolated into queries, so anything else is rejected.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration for values that would produce
// broken queries or an unusable service.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	switch cfg.CDM.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported cdm driver: %s", cfg.CDM.Driver)
	}

	switch cfg.Repository.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}

	return validateChecks(&cfg.Checks)
}

func validateChecks(cc *domain.ChecksConfig) error {
	if cc.TimeoutPerCheck <= 0 {
		return fmt.Errorf("timeoutPerCheck must be positive, got %d", cc.TimeoutPerCheck)
	}
	if cc.ParallelExecution && cc.MaxWorkers <= 0 {
		return fmt.Errorf("maxWorkers must be positive when parallelExecution is on, got %d", cc.MaxWorkers)
	}

	for _, f := range cc.Completeness.CriticalFields {
		if err := checkIdents(f.Table, f.Field); err != nil {
			return fmt.Errorf("completeness.criticalFields: %w", err)
		}
	}
	for _, f := range cc.Completeness.TableFields {
		if err := checkIdents(f.Table, f.Field); err != nil {
			return fmt.Errorf("completeness.tableFields: %w", err)
		}
	}
	if cc.Completeness.TableCompletenessWarning > cc.Completeness.TableCompletenessFail {
		return fmt.Errorf("completeness warning threshold %.1f exceeds fail threshold %.1f",
			cc.Completeness.TableCompletenessWarning, cc.Completeness.TableCompletenessFail)
	}

	for _, f := range cc.Temporal.DateFields {
		if err := checkIdents(f.Table, f.Field); err != nil {
			return fmt.Errorf("temporal.dateFields: %w", err)
		}
	}
	for _, p := range cc.Temporal.ChronologyPairs {
		if err := checkIdents(p.Table, p.StartField, p.EndField); err != nil {
			return fmt.Errorf("temporal.chronologyPairs: %w", err)
		}
	}
	for _, e := range cc.Temporal.EventTables {
		if err := checkIdents(e.Table, e.DateField); err != nil {
			return fmt.Errorf("temporal.eventTables: %w", err)
		}
	}
	if cc.Temporal.EventCountWarning > cc.Temporal.EventCountFail {
		return fmt.Errorf("temporal event count warning %d exceeds fail %d",
			cc.Temporal.EventCountWarning, cc.Temporal.EventCountFail)
	}

	for _, f := range cc.ConceptMapping.ConceptFields {
		if err := checkIdents(f.Table, f.Field); err != nil {
			return fmt.Errorf("conceptMapping.conceptFields: %w", err)
		}
	}
	if cc.ConceptMapping.UnmappedWarning > cc.ConceptMapping.UnmappedFail {
		return fmt.Errorf("conceptMapping unmapped warning %.1f exceeds fail %.1f",
			cc.ConceptMapping.UnmappedWarning, cc.ConceptMapping.UnmappedFail)
	}

	for _, r := range cc.Referential.Relationships {
		if err := checkIdents(r.Table, r.Field, r.RefTable, r.RefField); err != nil {
			return fmt.Errorf("referential.relationships: %w", err)
		}
	}
	if cc.Referential.OrphanWarning > cc.Referential.OrphanFail {
		return fmt.Errorf("referential orphan warning %d exceeds fail %d",
			cc.Referential.OrphanWarning, cc.Referential.OrphanFail)
	}

	for _, f := range cc.Statistical.NumericFields {
		if err := checkIdents(f.Table, f.Field); err != nil {
			return fmt.Errorf("statistical.numericFields: %w", err)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("statistical bounds for %s.%s: min %.2f exceeds max %.2f",
				f.Table, f.Field, *f.Min, *f.Max)
		}
	}

	seen := make(map[string]bool, len(cc.Custom))
	for _, c := range cc.Custom {
		if c.ID == "" {
			return fmt.Errorf("custom check missing id")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate custom check id: %s", c.ID)
		}
		seen[c.ID] = true
		if !validCategory(c.Category) {
			return fmt.Errorf("custom check %s: unknown category %q", c.ID, c.Category)
		}
		if c.Query == "" || c.Expression == "" {
			return fmt.Errorf("custom check %s: query and expression are required", c.ID)
		}
	}

	return nil
}

func checkIdents(names ...string) error {
	for _, name := range names {
		if !identRe.MatchString(name) {
			return fmt.Errorf("unsafe identifier %q", name)
		}
	}
	return nil
}

func validCategory(cat domain.Category) bool {
	for _, c := range domain.AllCategories() {
		if c == cat {
			return true
		}
	}
	return false
}
