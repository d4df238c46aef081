package detect

import (
	"fmt"
	"math"
)

// Kernel detector defaults.
const (
	defaultNuFloor    = 0.001
	defaultKernelSeed = 42
	// DefaultMaxKernelSamples caps the retained training set; prediction cost
	// scales linearly with it.
	DefaultMaxKernelSamples = 10000
)

// OneClassKernel is an RBF-kernel one-class boundary detector. It
// standardizes rows with the fit-time statistics, scores each row by its
// mean RBF similarity to the retained training set, and labels rows below
// the nu-quantile offset rho as anomalies.
type OneClassKernel struct {
	Nu         float64
	MaxSamples int
	Seed       int64

	support [][]float64
	means   []float64
	stds    []float64
	gamma   float64
	rho     float64
	arity   int
	stats   SampleStats
}

// NewOneClassKernel derives nu from the contamination ratio, floored at
// defaultNuFloor.
func NewOneClassKernel(contamination float64) *OneClassKernel {
	return &OneClassKernel{
		Nu:         math.Max(contamination, defaultNuFloor),
		MaxSamples: DefaultMaxKernelSamples,
		Seed:       defaultKernelSeed,
	}
}

// Name implements Detector.
func (k *OneClassKernel) Name() string { return NameOneClassSVM }

// Arity implements Detector.
func (k *OneClassKernel) Arity() int { return k.arity }

// Hyperparameters implements Detector.
func (k *OneClassKernel) Hyperparameters() map[string]any {
	return map[string]any{
		"kernel":      "rbf",
		"nu":          k.Nu,
		"max_samples": k.MaxSamples,
		"seed":        k.Seed,
	}
}

// SampleInfo reports how the training set was reduced during Fit.
func (k *OneClassKernel) SampleInfo() SampleStats { return k.stats }

// Fit standardizes the matrix, retains at most MaxSamples rows as the
// support set, and fixes rho at the nu-quantile of the training self-scores.
func (k *OneClassKernel) Fit(matrix [][]float64) error {
	if len(matrix) == 0 {
		return ErrEmptyMatrix
	}

	k.arity = len(matrix[0])
	k.gamma = 1.0 / float64(k.arity)
	k.means, k.stds = columnMeanStd(matrix)

	sampled, stats := sampleRows(matrix, k.MaxSamples, k.Seed, nil)
	k.stats = stats

	k.support = make([][]float64, len(sampled))
	for i, row := range sampled {
		k.support[i] = k.standardize(row)
	}

	selfScores := make([]float64, len(k.support))
	for i, row := range k.support {
		selfScores[i] = k.similarity(row)
	}

	k.rho = quantile(selfScores, k.Nu)

	return nil
}

// Predict implements Detector. The decision value is similarity - rho;
// negative decisions are anomalies. Scores are the negated decisions min-max
// scaled to [0,1].
func (k *OneClassKernel) Predict(matrix [][]float64) ([]int, []float64, error) {
	if err := checkMatrix(matrix, k.arity); err != nil {
		return nil, nil, err
	}

	raw := make([]float64, len(matrix))
	labels := make([]int, len(matrix))

	for i, row := range matrix {
		decision := k.similarity(k.standardize(row)) - k.rho
		raw[i] = decision

		if decision < 0 {
			labels[i] = LabelAnomaly
		} else {
			labels[i] = LabelInlier
		}
	}

	return labels, normalizeInverted(raw), nil
}

// FitPredict implements Detector.
func (k *OneClassKernel) FitPredict(matrix [][]float64) ([]int, []float64, error) {
	if err := k.Fit(matrix); err != nil {
		return nil, nil, err
	}

	return k.Predict(matrix)
}

func (k *OneClassKernel) standardize(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - k.means[j]) / k.stds[j]
	}

	return out
}

// similarity is the mean RBF kernel value between a standardized row and the
// support set.
func (k *OneClassKernel) similarity(row []float64) float64 {
	sum := 0.0

	for _, s := range k.support {
		d2 := 0.0
		for j := range row {
			diff := row[j] - s[j]
			d2 += diff * diff
		}

		sum += math.Exp(-k.gamma * d2)
	}

	return sum / float64(len(k.support))
}

// KernelState is the gob-serializable trained state of the kernel detector.
type KernelState struct {
	Nu         float64
	MaxSamples int
	Seed       int64
	Support    [][]float64
	Means      []float64
	Stds       []float64
	Gamma      float64
	Rho        float64
	Arity      int
}

// TrainedState implements Persistable.
func (k *OneClassKernel) TrainedState() (any, error) {
	if k.arity == 0 {
		return nil, ErrNotFitted
	}

	return &KernelState{
		Nu:         k.Nu,
		MaxSamples: k.MaxSamples,
		Seed:       k.Seed,
		Support:    k.support,
		Means:      k.means,
		Stds:       k.stds,
		Gamma:      k.gamma,
		Rho:        k.rho,
		Arity:      k.arity,
	}, nil
}

// RestoreState implements Persistable.
func (k *OneClassKernel) RestoreState(state any) error {
	s, ok := state.(*KernelState)
	if !ok {
		return fmt.Errorf("restore one-class kernel: unexpected state type %T", state)
	}

	k.Nu = s.Nu
	k.MaxSamples = s.MaxSamples
	k.Seed = s.Seed
	k.support = s.Support
	k.means = s.Means
	k.stds = s.Stds
	k.gamma = s.Gamma
	k.rho = s.Rho
	k.arity = s.Arity

	return nil
}
