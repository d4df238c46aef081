// Package detect implements the base anomaly detectors: an isolation forest,
// an RBF-kernel one-class detector, and a statistical z-score/IQR detector.
// Every detector fits on a feature matrix, predicts -1/+1 labels with raw
// scores normalized to [0,1] (1 = strongest anomaly), and exposes a
// gob-serializable state for the model store.
package detect

import "errors"

// Detector names used as model store keys and anomaly algorithm labels.
const (
	NameIsolationForest = "isolation_forest"
	NameOneClassSVM     = "one_class_svm"
	NameStatistical     = "statistical"
)

// Sentinel errors.
var (
	ErrNotFitted    = errors.New("detector not fitted")
	ErrEmptyMatrix  = errors.New("empty feature matrix")
	ErrArityChanged = errors.New("feature arity differs from fit")
)

// Labels.
const (
	LabelAnomaly = -1
	LabelInlier  = 1
)

// Detector is the contract shared by all base detectors.
type Detector interface {
	// Name returns the stable detector name.
	Name() string

	// Fit trains the detector on the matrix.
	Fit(matrix [][]float64) error

	// Predict returns -1/+1 labels and normalized [0,1] anomaly scores.
	Predict(matrix [][]float64) (labels []int, scores []float64, err error)

	// FitPredict fits and then predicts on the same matrix.
	FitPredict(matrix [][]float64) ([]int, []float64, error)

	// Hyperparameters returns the canonical hyperparameter set used for
	// model store fingerprinting.
	Hyperparameters() map[string]any

	// Arity returns the fitted feature arity, or 0 when unfitted.
	Arity() int
}

// Persistable is implemented by detectors whose trained state round-trips
// through the model store.
type Persistable interface {
	// TrainedState returns the gob-serializable trained state.
	TrainedState() (any, error)

	// RestoreState installs a previously persisted trained state.
	RestoreState(state any) error
}

// checkMatrix validates a prediction input against the fitted arity.
func checkMatrix(matrix [][]float64, fittedArity int) error {
	if len(matrix) == 0 {
		return ErrEmptyMatrix
	}

	if fittedArity == 0 {
		return ErrNotFitted
	}

	if len(matrix[0]) != fittedArity {
		return ErrArityChanged
	}

	return nil
}
