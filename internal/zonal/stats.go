package zonal

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// Method selects which statistic becomes the row's primary value.
type Method string

const (
	MethodMean   Method = "mean"
	MethodMedian Method = "median"
	MethodMax    Method = "max"
	MethodMin    Method = "min"
)

// ParseMethod validates a zonal aggregation method name. Empty means mean.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return MethodMean, nil
	case MethodMean, MethodMedian, MethodMax, MethodMin:
		return m, nil
	default:
		return "", fmt.Errorf("unknown zonal aggregation method %q", s)
	}
}

// Pick returns the statistic selected by m.
func (m Method) Pick(s domain.Statistics) float64 {
	switch m {
	case MethodMedian:
		return s.Median
	case MethodMax:
		return s.Max
	case MethodMin:
		return s.Min
	default:
		return s.Mean
	}
}

// summarize computes unweighted statistics of finite values. values must not be empty and is
// sorted in place.
func summarize(values []float64) domain.Statistics {
	sort.Float64s(values)
	mean, std := stat.PopMeanStdDev(values, nil)
	return domain.Statistics{
		Mean:   mean,
		Median: quantile(values, 0.5),
		StdDev: std,
		Min:    values[0],
		Max:    values[len(values)-1],
		Q1:     quantile(values, 0.25),
		Q3:     quantile(values, 0.75),
	}
}

// quantile interpolates linearly between closest ranks at (n-1)p, the convention of numpy's
// default quantile. gonum's LinInterp uses n*p and gives lower quartiles on small samples.
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
