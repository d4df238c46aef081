package detect

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// epsilon substitutes zero spread in variance-style denominators.
const epsilon = 1e-10

// normalizeInverted negates raw detector scores (where lower = more
// anomalous) and min-max scales the result to [0,1]. A zero range yields all
// zeros.
func normalizeInverted(raw []float64) []float64 {
	inverted := make([]float64, len(raw))
	for i, v := range raw {
		inverted[i] = -v
	}

	return minMax(inverted)
}

// minMax scales values to [0,1]; a zero range yields all zeros.
func minMax(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}

		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(values))
	if hi-lo == 0 {
		return out
	}

	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}

	return out
}

// quantile returns the linearly-interpolated q-quantile (q in [0,1]) of the
// values without mutating the input.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return stat.Quantile(q, stat.LinInterp, sorted, nil)
}

// columnMeanStd computes per-column mean and standard deviation, replacing
// zero deviations with epsilon.
func columnMeanStd(matrix [][]float64) (means, stds []float64) {
	arity := len(matrix[0])
	means = make([]float64, arity)
	stds = make([]float64, arity)
	column := make([]float64, len(matrix))

	for j := 0; j < arity; j++ {
		for i := range matrix {
			column[i] = matrix[i][j]
		}

		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || len(matrix) < 2 {
			std = epsilon
		}

		means[j] = mean
		stds[j] = std
	}

	return means, stds
}
