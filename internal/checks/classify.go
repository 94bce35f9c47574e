package checks

import "github.com/opensource-health/kestrel/internal/domain"

// Direction states which way a metric degrades.
type Direction int

const (
	// HigherIsWorse applies to violation counts and percentages:
	// the metric crosses into WARNING and then FAIL as it grows.
	HigherIsWorse Direction = iota
	// LowerIsWorse applies to coverage scores: the metric is healthy
	// at or above the warning threshold and degrades as it drops.
	LowerIsWorse
)

// Classify maps a metric onto a verdict. Band lower bounds are
// inclusive: a metric exactly at the warning threshold is a WARNING,
// exactly at the fail threshold a FAIL.
func Classify(metric, warning, fail float64, dir Direction) domain.Status {
	if dir == LowerIsWorse {
		switch {
		case metric >= warning:
			return domain.StatusPass
		case metric >= fail:
			return domain.StatusWarning
		default:
			return domain.StatusFail
		}
	}
	switch {
	case metric >= fail:
		return domain.StatusFail
	case metric >= warning:
		return domain.StatusWarning
	default:
		return domain.StatusPass
	}
}

// gate is the zero-tolerance variant: any violation is a FAIL.
func gate(count int64) domain.Status {
	if count > 0 {
		return domain.StatusFail
	}
	return domain.StatusPass
}
