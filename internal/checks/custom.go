package checks

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Custom checks let a site declare its own rule: a scalar SQL query
// whose result is bound as `value`, judged by a CEL expression that
// must return a bool. False is a FAIL.

func customCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("value", cel.DoubleType),
	)
}

func compileCustomRules(configs []domain.CustomCheckConfig) ([]Rule, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	env, err := customCELEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	rules := make([]Rule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		program, err := compileCustomExpression(env, cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, customRule(cfg, program))
	}
	return rules, nil
}

func compileCustomExpression(env *cel.Env, cfg domain.CustomCheckConfig) (cel.Program, error) {
	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile check %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("check %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program for check %s: %w", cfg.ID, err)
	}
	return program, nil
}

func customRule(cfg domain.CustomCheckConfig, program cel.Program) Rule {
	r := Rule{
		ID:          cfg.ID,
		Category:    cfg.Category,
		Description: cfg.Description,
	}
	r.run = func(ctx context.Context, env *Env) domain.RuleResult {
		value, err := env.Exec.ScalarFloat(ctx, cfg.Query)
		if err != nil {
			return queryErrorResult(r, err)
		}

		out, _, err := program.Eval(map[string]any{"value": value})
		if err != nil {
			return errorResult(r, fmt.Sprintf("evaluate expression: %v", err))
		}
		passed, ok := out.Value().(bool)
		if !ok {
			return errorResult(r, fmt.Sprintf("expression returned %T, want bool", out.Value()))
		}

		status := domain.StatusPass
		message := ""
		if !passed {
			status = domain.StatusFail
			message = fmt.Sprintf("expression %q is false for value %g", cfg.Expression, value)
		}
		return domain.RuleResult{
			Status:      status,
			MetricValue: value,
			Message:     message,
		}
	}
	return r
}
