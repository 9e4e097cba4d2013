// Package stats holds the descriptive statistics and hypothesis tests used by
// the performance and validation packages.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// PopStdDev returns the population standard deviation (divisor n) of xs.
// Fewer than two samples yield 0.
func PopStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	v := stat.Variance(xs, nil) * float64(n-1) / float64(n)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Sqrt(v)
}

// SampleVariance returns the unbiased variance (divisor n-1) of xs, or 0 for
// fewer than two samples.
func SampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	v := stat.Variance(xs, nil)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// Pearson returns the correlation coefficient of xs and ys. Mismatched
// lengths, fewer than two samples or a constant series yield 0.
func Pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	if SampleVariance(xs) == 0 || SampleVariance(ys) == 0 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// TTestResult is the outcome of a two-sample t-test.
type TTestResult struct {
	T      float64
	DF     float64
	PValue float64 // two-sided
	MeanA  float64
	MeanB  float64
}

// WelchTTest runs an unequal-variance two-sample t-test of a against b.
// Both samples need at least two observations; otherwise the result carries
// a p-value of 1. Two constant samples with equal means also give p = 1,
// and with different means p = 0.
func WelchTTest(a, b []float64) TTestResult {
	res := TTestResult{PValue: 1, MeanA: Mean(a), MeanB: Mean(b)}
	na, nb := float64(len(a)), float64(len(b))
	if len(a) < 2 || len(b) < 2 {
		return res
	}

	va := SampleVariance(a) / na
	vb := SampleVariance(b) / nb
	se2 := va + vb
	diff := res.MeanA - res.MeanB

	if se2 == 0 {
		if diff != 0 {
			res.PValue = 0
			res.T = math.Copysign(math.Inf(1), diff)
		}
		return res
	}

	res.T = diff / math.Sqrt(se2)
	res.DF = se2 * se2 / (va*va/(na-1) + vb*vb/(nb-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	p := 2 * dist.Survival(math.Abs(res.T))
	res.PValue = math.Min(1, math.Max(0, p))
	return res
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
