package ensemble

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Calibration constants. Combined scores are min-max scaled, spread through
// a sigmoid centered on 0.5, and mapped into [0.1, 0.99] so downstream
// severity bands see a usable dynamic range.
const (
	sigmoidSlope     = 6.0
	sigmoidCenter    = 0.5
	calibrationFloor = 0.1
	calibrationSpan  = 0.89
	flatRange        = 1e-8

	linspaceLow  = 0.1
	linspaceHigh = 0.9
)

// Calibrate maps raw combined scores onto the calibrated [0.1, 0.99] scale.
// A flat input (range below flatRange) falls back to rank-preserving evenly
// spaced scores in [0.1, 0.9] so thresholding still separates rows.
func Calibrate(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}

	lo, hi := scores[0], scores[0]
	for _, v := range scores {
		if v < lo {
			lo = v
		}

		if v > hi {
			hi = v
		}
	}

	if hi-lo < flatRange {
		return rankLinspace(scores)
	}

	out := make([]float64, len(scores))
	for i, v := range scores {
		normalized := (v - lo) / (hi - lo)
		spread := 1.0 / (1.0 + math.Exp(-sigmoidSlope*(normalized-sigmoidCenter)))
		out[i] = calibrationFloor + calibrationSpan*spread
	}

	return out
}

// rankLinspace assigns evenly spaced values in [0.1, 0.9] by score rank,
// preserving the input ordering.
func rankLinspace(scores []float64) []float64 {
	n := len(scores)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	step := 0.0
	if n > 1 {
		step = (linspaceHigh - linspaceLow) / float64(n-1)
	}

	out := make([]float64, n)
	for rank, i := range idx {
		out[i] = linspaceLow + float64(rank)*step
	}

	return out
}

// percentile returns the linearly-interpolated p-th percentile (p in
// [0,100]) without mutating the input.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}
