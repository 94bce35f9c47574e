// Package checks provides the OMOP quality check rules and the engine
// that runs them against a CDM database.
package checks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-health/kestrel/internal/cdm"
	"github.com/opensource-health/kestrel/internal/domain"
)

// RowCountFunc returns the row count of a CDM table. The engine is
// handed a cached implementation (see internal/profile).
type RowCountFunc func(ctx context.Context, table string) (int64, error)

// Env carries the shared, read-only dependencies of a rule run.
type Env struct {
	Exec     domain.Executor
	Q        cdm.Queries
	Cfg      *domain.ChecksConfig
	RowCount RowCountFunc
}

// Rule is one unit of evaluation: stateless, safe to invoke repeatedly
// and concurrently on independent connections.
type Rule struct {
	ID          string
	Category    domain.Category
	Description string

	run func(ctx context.Context, env *Env) domain.RuleResult
}

// Info is the rule metadata exposed by the API.
type Info struct {
	ID          string          `json:"id"`
	Category    domain.Category `json:"category"`
	Description string          `json:"description"`
}

// sampleLimit caps the offending-row detail attached to a result.
const sampleLimit = 10

// evaluate runs the rule with timing and a panic fault boundary.
func (r Rule) evaluate(ctx context.Context, env *Env) (result domain.RuleResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult(r, fmt.Sprintf("check panicked: %v", rec))
		}
		result.ProcessMs = time.Since(start).Milliseconds()
	}()

	result = r.run(ctx, env)
	result.RuleID = r.ID
	result.Category = r.Category
	return result
}

// errorResult converts a failure into an ERROR result; the run
// continues regardless.
func errorResult(r Rule, message string) domain.RuleResult {
	return domain.RuleResult{
		RuleID:   r.ID,
		Category: r.Category,
		Status:   domain.StatusError,
		Message:  message,
	}
}

// queryErrorResult preserves the underlying database message.
func queryErrorResult(r Rule, err error) domain.RuleResult {
	return errorResult(r, err.Error())
}

const msgNoData = "no data to evaluate"

// asInt64 coerces scanned SQL values (drivers differ on aggregate
// column types) to int64.
func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case []byte:
		n, _ := strconv.ParseInt(string(x), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}

// percentage returns part/total as a percent, 0 when total is 0.
func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
