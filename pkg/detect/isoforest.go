package detect

import (
	"fmt"
	"math"
	"math/rand"
)

// Isolation forest defaults.
const (
	defaultTreeCount   = 100
	defaultSubsample   = 256
	defaultForestSeed  = 42
	defaultContamRatio = 0.1
)

// isoNode is a single node of an isolation tree. Leaves carry the sample
// count that reached them; internal nodes carry the split.
type isoNode struct {
	Feature   int
	Threshold float64
	Left      *isoNode
	Right     *isoNode
	Size      int
}

func (n *isoNode) leaf() bool { return n.Left == nil && n.Right == nil }

// IsolationForest isolates anomalies by random axis-aligned splits: points
// that separate in few splits score high. Raw scores follow the 0.5-s
// convention, where s = 2^(-E[h(x)]/c(psi)), so lower raw = more anomalous.
type IsolationForest struct {
	TreeCount     int
	SubsampleSize int
	Contamination float64
	Seed          int64

	trees      []*isoNode
	arity      int
	psi        int
	threshold  float64
	importance []float64
}

// NewIsolationForest returns a forest with the default tree count and
// subsample size and the given contamination ratio.
func NewIsolationForest(contamination float64) *IsolationForest {
	if contamination <= 0 {
		contamination = defaultContamRatio
	}

	return &IsolationForest{
		TreeCount:     defaultTreeCount,
		SubsampleSize: defaultSubsample,
		Contamination: contamination,
		Seed:          defaultForestSeed,
	}
}

// Name implements Detector.
func (f *IsolationForest) Name() string { return NameIsolationForest }

// Arity implements Detector.
func (f *IsolationForest) Arity() int { return f.arity }

// Hyperparameters implements Detector.
func (f *IsolationForest) Hyperparameters() map[string]any {
	return map[string]any{
		"trees":         f.TreeCount,
		"subsample":     f.SubsampleSize,
		"contamination": f.Contamination,
		"seed":          f.Seed,
	}
}

// Fit grows TreeCount trees over seeded subsamples and fixes the label
// threshold at the contamination quantile of the training raw scores.
func (f *IsolationForest) Fit(matrix [][]float64) error {
	if len(matrix) == 0 {
		return ErrEmptyMatrix
	}

	f.arity = len(matrix[0])
	f.trees = make([]*isoNode, f.TreeCount)
	f.importance = make([]float64, f.arity)

	rng := rand.New(rand.NewSource(f.Seed))
	psi := min(f.SubsampleSize, len(matrix))
	f.psi = psi
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	for t := 0; t < f.TreeCount; t++ {
		sample := make([][]float64, psi)
		perm := rng.Perm(len(matrix))
		for i := 0; i < psi; i++ {
			sample[i] = matrix[perm[i]]
		}

		f.trees[t] = f.grow(sample, 0, maxDepth, rng)
	}

	f.normalizeImportance()

	raw := f.rawScores(matrix)
	f.threshold = quantile(raw, f.Contamination)

	return nil
}

// Predict implements Detector. Labels use the threshold fixed at fit time;
// scores are the negated raw scores min-max scaled to [0,1].
func (f *IsolationForest) Predict(matrix [][]float64) ([]int, []float64, error) {
	if err := checkMatrix(matrix, f.arity); err != nil {
		return nil, nil, err
	}

	raw := f.rawScores(matrix)
	labels := make([]int, len(raw))

	for i, r := range raw {
		if r < f.threshold {
			labels[i] = LabelAnomaly
		} else {
			labels[i] = LabelInlier
		}
	}

	return labels, normalizeInverted(raw), nil
}

// FitPredict implements Detector.
func (f *IsolationForest) FitPredict(matrix [][]float64) ([]int, []float64, error) {
	if err := f.Fit(matrix); err != nil {
		return nil, nil, err
	}

	return f.Predict(matrix)
}

// FeatureImportance returns the split-frequency importance per feature,
// normalized to sum to 1. A forest that never split (degenerate data) yields
// a uniform distribution.
func (f *IsolationForest) FeatureImportance() []float64 {
	out := make([]float64, len(f.importance))
	copy(out, f.importance)

	return out
}

func (f *IsolationForest) grow(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(sample) <= 1 {
		return &isoNode{Size: len(sample)}
	}

	feature := rng.Intn(f.arity)
	lo, hi := sample[0][feature], sample[0][feature]

	for _, row := range sample {
		if row[feature] < lo {
			lo = row[feature]
		}

		if row[feature] > hi {
			hi = row[feature]
		}
	}

	if lo == hi {
		return &isoNode{Size: len(sample)}
	}

	threshold := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64

	for _, row := range sample {
		if row[feature] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	f.importance[feature]++

	return &isoNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      f.grow(left, depth+1, maxDepth, rng),
		Right:     f.grow(right, depth+1, maxDepth, rng),
		Size:      len(sample),
	}
}

func (f *IsolationForest) normalizeImportance() {
	total := 0.0
	for _, v := range f.importance {
		total += v
	}

	if total == 0 {
		for i := range f.importance {
			f.importance[i] = 1.0 / float64(len(f.importance))
		}

		return
	}

	for i := range f.importance {
		f.importance[i] /= total
	}
}

func (f *IsolationForest) rawScores(matrix [][]float64) []float64 {
	c := averagePathLength(float64(f.psi))
	raw := make([]float64, len(matrix))

	for i, row := range matrix {
		sum := 0.0
		for _, tree := range f.trees {
			sum += pathLength(tree, row, 0)
		}

		mean := sum / float64(len(f.trees))
		s := math.Pow(2, -mean/c)
		raw[i] = 0.5 - s
	}

	return raw
}

// pathLength walks the tree and adds the unbuilt-subtree adjustment c(size)
// at leaves holding more than one sample.
func pathLength(node *isoNode, row []float64, depth float64) float64 {
	if node.leaf() {
		if node.Size > 1 {
			return depth + averagePathLength(float64(node.Size))
		}

		return depth
	}

	if row[node.Feature] < node.Threshold {
		return pathLength(node.Left, row, depth+1)
	}

	return pathLength(node.Right, row, depth+1)
}

// averagePathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 1
	}

	const eulerMascheroni = 0.5772156649
	harmonic := math.Log(n-1) + eulerMascheroni

	return 2*harmonic - 2*(n-1)/n
}

// ForestState is the gob-serializable trained state of an isolation forest.
type ForestState struct {
	TreeCount     int
	SubsampleSize int
	Contamination float64
	Seed          int64
	Trees         []*isoNode
	Arity         int
	Psi           int
	Threshold     float64
	Importance    []float64
}

// TrainedState implements Persistable.
func (f *IsolationForest) TrainedState() (any, error) {
	if f.arity == 0 {
		return nil, ErrNotFitted
	}

	return &ForestState{
		TreeCount:     f.TreeCount,
		SubsampleSize: f.SubsampleSize,
		Contamination: f.Contamination,
		Seed:          f.Seed,
		Trees:         f.trees,
		Arity:         f.arity,
		Psi:           f.psi,
		Threshold:     f.threshold,
		Importance:    f.importance,
	}, nil
}

// RestoreState implements Persistable.
func (f *IsolationForest) RestoreState(state any) error {
	s, ok := state.(*ForestState)
	if !ok {
		return fmt.Errorf("restore isolation forest: unexpected state type %T", state)
	}

	f.TreeCount = s.TreeCount
	f.SubsampleSize = s.SubsampleSize
	f.Contamination = s.Contamination
	f.Seed = s.Seed
	f.trees = s.Trees
	f.arity = s.Arity
	f.psi = s.Psi
	f.threshold = s.Threshold
	f.importance = s.Importance

	return nil
}
