package checks

import (
	"math"
	"sort"
)

// The statistical helpers below are small enough that pulling in a
// stats dependency would cost more than it saves. Quantiles use
// linear interpolation between closest ranks.

func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// meanStd returns the mean and sample standard deviation.
func meanStd(values []float64) (mean, std float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / (n - 1))
	return mean, std
}

// countOutliers flags values outside the IQR fence or past the
// z-score threshold; a value caught by either method counts once.
func countOutliers(values []float64, iqrMultiplier, zThreshold float64) int64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - iqrMultiplier*iqr
	hi := q3 + iqrMultiplier*iqr

	mean, std := meanStd(values)

	var count int64
	for _, v := range values {
		if v < lo || v > hi {
			count++
			continue
		}
		if std > 0 && math.Abs(v-mean)/std > zThreshold {
			count++
		}
	}
	return count
}
