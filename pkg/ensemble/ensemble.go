// Package ensemble combines the base detectors and the keyword engine into
// one calibrated anomaly scorer. Scores land in [0.1, 0.99] and rows above
// the label percentile are marked anomalous.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0Ankit0-0/quorum/pkg/detect"
	"github.com/0Ankit0-0/quorum/pkg/keyword"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
	"github.com/0Ankit0-0/quorum/pkg/modelstore"
)

// ErrUnknownAlgorithm reports an algorithm name Detect does not recognize.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// maxDetectorWorkers bounds the detector pool in ensemble mode.
const maxDetectorWorkers = 4

// Weights of each signal in ensemble mode. They sum to 1.
var ensembleWeights = map[string]float64{
	detect.NameIsolationForest: 0.35,
	detect.NameOneClassSVM:     0.25,
	detect.NameStatistical:     0.20,
	"keyword":                  0.20,
}

// baseDetectors lists the detector names run in ensemble mode, in weight
// order.
var baseDetectors = []string{
	detect.NameIsolationForest,
	detect.NameOneClassSVM,
	detect.NameStatistical,
}

// Ensemble orchestrates detector training, model reuse, score blending, and
// calibration. The model store may be nil, in which case every run trains
// fresh models.
type Ensemble struct {
	store  *modelstore.Store
	logger *slog.Logger
}

// New creates an ensemble backed by the given model store.
func New(store *modelstore.Store, logger *slog.Logger) *Ensemble {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ensemble{store: store, logger: logger}
}

// Detect scores the feature matrix with the selected algorithm. Records, when
// present and aligned with the matrix, feed the keyword engine; passing nil
// runs pure feature-based detection. Returns -1/+1 labels and calibrated
// scores.
func (e *Ensemble) Detect(
	ctx context.Context,
	matrix [][]float64,
	records []logdata.Record,
	opts Options,
) ([]int, []float64, error) {
	if len(matrix) == 0 {
		return nil, nil, detect.ErrEmptyMatrix
	}

	opts.normalize()

	if len(records) != 0 && len(records) != len(matrix) {
		return nil, nil, fmt.Errorf("records/matrix length mismatch: %d vs %d", len(records), len(matrix))
	}

	var (
		combined []float64
		err      error
	)

	if opts.Algorithm == AlgorithmEnsemble {
		combined, err = e.ensembleScores(ctx, matrix, records, opts)
	} else {
		combined, err = e.singleScores(ctx, matrix, records, opts)
	}

	if err != nil {
		return nil, nil, err
	}

	final := Calibrate(combined)
	threshold := percentile(final, opts.LabelPercentile)

	labels := make([]int, len(final))
	for i, s := range final {
		if s >= threshold {
			labels[i] = detect.LabelAnomaly
		} else {
			labels[i] = detect.LabelInlier
		}
	}

	return labels, final, nil
}

// singleScores runs one base detector and, when raw records are available,
// blends its scores with the keyword engine at 0.75/0.25.
func (e *Ensemble) singleScores(
	ctx context.Context,
	matrix [][]float64,
	records []logdata.Record,
	opts Options,
) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := e.runDetector(opts.Algorithm, matrix, opts)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return scores, nil
	}

	keywordScores := keyword.ScoreBatch(records)

	blended := make([]float64, len(scores))
	for i := range scores {
		blended[i] = mlBlendWeight*scores[i] + keywordBlendWeight*keywordScores[i]
	}

	return blended, nil
}

// ensembleScores runs every base detector plus the keyword engine through a
// bounded pool and combines their scores by fixed weights. A failed detector
// contributes a zero vector instead of failing the run.
func (e *Ensemble) ensembleScores(
	ctx context.Context,
	matrix [][]float64,
	records []logdata.Record,
	opts Options,
) ([]float64, error) {
	n := len(matrix)
	scoresByName := make(map[string][]float64, len(baseDetectors)+1)
	for _, name := range baseDetectors {
		scoresByName[name] = make([]float64, n)
	}

	scoresByName["keyword"] = make([]float64, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(baseDetectors)+1, maxDetectorWorkers))

	for _, name := range baseDetectors {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()

			scores, err := e.runDetector(name, matrix, opts)
			if err != nil {
				// Degraded mode: the detector drops out of the blend.
				e.logger.Error("detector failed, contributing zero scores",
					"detector", name, "error", err)

				return nil
			}

			copy(scoresByName[name], scores)
			e.logger.Info("detector complete",
				"detector", name, "elapsed", time.Since(start))

			return nil
		})
	}

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(records) != 0 {
			copy(scoresByName["keyword"], keyword.ScoreBatch(records))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := make([]float64, n)
	for name, weight := range ensembleWeights {
		for i, s := range scoresByName[name] {
			combined[i] += weight * s
		}
	}

	return combined, nil
}

// runDetector loads a persisted model when one matches, otherwise fits fresh
// and persists the result. Load and save failures degrade to retraining and
// are never fatal.
func (e *Ensemble) runDetector(name string, matrix [][]float64, opts Options) ([]float64, error) {
	det, err := newDetector(name, opts)
	if err != nil {
		return nil, err
	}

	if !opts.ForceRetrain && e.restore(det, len(matrix[0])) {
		e.logger.Info("using pre-trained model", "detector", name)

		_, scores, predictErr := det.Predict(matrix)
		if predictErr == nil {
			return scores, nil
		}

		e.logger.Warn("pre-trained model predict failed, retraining",
			"detector", name, "error", predictErr)
	}

	_, scores, err := det.FitPredict(matrix)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", name, err)
	}

	e.persist(det)

	return scores, nil
}

// restore tries to install persisted state into the detector. Any failure
// (missing model, stale metadata, decode error) just means retrain.
func (e *Ensemble) restore(det detect.Detector, arity int) bool {
	if e.store == nil {
		return false
	}

	persistable, ok := det.(detect.Persistable)
	if !ok {
		return false
	}

	state := freshState(det.Name())
	expect := modelstore.Expectation{
		Model:           det.Name(),
		Arity:           arity,
		Hyperparameters: det.Hyperparameters(),
	}

	err := e.store.Load(expect, state)
	if err != nil {
		if !errors.Is(err, modelstore.ErrModelNotFound) {
			e.logger.Warn("model load failed, retraining", "detector", det.Name(), "error", err)
		}

		return false
	}

	err = persistable.RestoreState(state)
	if err != nil {
		e.logger.Warn("model restore failed, retraining", "detector", det.Name(), "error", err)

		return false
	}

	return true
}

// persist saves a freshly fitted detector. Failures are logged and ignored;
// the in-memory model already served the run.
func (e *Ensemble) persist(det detect.Detector) {
	if e.store == nil {
		return
	}

	persistable, ok := det.(detect.Persistable)
	if !ok {
		return
	}

	state, err := persistable.TrainedState()
	if err != nil {
		e.logger.Warn("model state export failed", "detector", det.Name(), "error", err)

		return
	}

	err = e.store.Save(det.Name(), det.Arity(), det.Hyperparameters(), state)
	if err != nil {
		e.logger.Warn("model save failed", "detector", det.Name(), "error", err)
	}
}

// newDetector builds a base detector by name, applying the tuning knobs the
// options carry.
func newDetector(name string, opts Options) (detect.Detector, error) {
	switch name {
	case detect.NameIsolationForest:
		forest := detect.NewIsolationForest(opts.Contamination)
		if opts.Seed != 0 {
			forest.Seed = opts.Seed
		}

		return forest, nil
	case detect.NameOneClassSVM:
		kernel := detect.NewOneClassKernel(opts.Contamination)
		if opts.MaxKernelSamples > 0 {
			kernel.MaxSamples = opts.MaxKernelSamples
		}

		if opts.Seed != 0 {
			kernel.Seed = opts.Seed
		}

		return kernel, nil
	case detect.NameStatistical:
		return detect.NewStatistical(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// freshState returns an empty trained-state value for the named detector,
// ready for the model store to decode into.
func freshState(name string) any {
	switch name {
	case detect.NameIsolationForest:
		return &detect.ForestState{}
	case detect.NameOneClassSVM:
		return &detect.KernelState{}
	case detect.NameStatistical:
		return &detect.StatisticalState{}
	default:
		return nil
	}
}
