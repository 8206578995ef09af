/*

This file contains the APY statistics used for performance tracking: mean, moving average,
sample variance, coefficient of variation and the Sharpe ratio.

*/

package analyzer

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// MovingAverage returns the mean of the last window values. A window larger than
// the series, or non-positive, averages the whole series.
func MovingAverage(values []float64, window int) float64 {
	if window <= 0 || window > len(values) {
		window = len(values)
	}
	return Mean(values[len(values)-window:])
}

// SampleVariance uses the n-1 denominator and returns 0 below two samples.
func SampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// CoefficientOfVariation is stddev/mean. A zero mean with any dispersion is treated as
// maximally inconsistent.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 {
		return 0
	}
	if mean == 0 {
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// SharpeRatio is (mean - riskFree) / sample stddev. It returns 0 with fewer than two
// samples or no dispersion.
func SharpeRatio(values []float64, riskFree float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean - riskFree) / std
}
