package detect

import "fmt"

// Statistical methods.
const (
	MethodZScore = "zscore"
	MethodIQR    = "iqr"

	defaultZThreshold = 3.0
)

// ErrUnknownMethod reports an unsupported statistical method.
var ErrUnknownMethod = fmt.Errorf("unknown statistical method")

// Statistical flags rows by per-column z-scores or interquartile-range
// bounds. It carries no randomness; identical input always produces
// identical output.
type Statistical struct {
	Method    string
	Threshold float64

	means []float64
	stds  []float64
	q1    []float64
	q3    []float64
	iqr   []float64
	arity int
}

// NewStatistical returns a z-score detector with the default threshold.
func NewStatistical() *Statistical {
	return &Statistical{Method: MethodZScore, Threshold: defaultZThreshold}
}

// Name implements Detector.
func (s *Statistical) Name() string { return NameStatistical }

// Arity implements Detector.
func (s *Statistical) Arity() int { return s.arity }

// Hyperparameters implements Detector.
func (s *Statistical) Hyperparameters() map[string]any {
	return map[string]any{"method": s.Method, "threshold": s.Threshold}
}

// Fit records per-column statistics: mean/std for zscore, quartiles and IQR
// for iqr. Zero spreads are replaced with epsilon.
func (s *Statistical) Fit(matrix [][]float64) error {
	if len(matrix) == 0 {
		return ErrEmptyMatrix
	}

	s.arity = len(matrix[0])

	switch s.Method {
	case MethodZScore:
		s.means, s.stds = columnMeanStd(matrix)
	case MethodIQR:
		s.q1 = make([]float64, s.arity)
		s.q3 = make([]float64, s.arity)
		s.iqr = make([]float64, s.arity)
		column := make([]float64, len(matrix))

		for j := 0; j < s.arity; j++ {
			for i := range matrix {
				column[i] = matrix[i][j]
			}

			s.q1[j] = quantile(column, 0.25)
			s.q3[j] = quantile(column, 0.75)

			s.iqr[j] = s.q3[j] - s.q1[j]
			if s.iqr[j] == 0 {
				s.iqr[j] = epsilon
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, s.Method)
	}

	return nil
}

// Predict implements Detector. For zscore the row score is the max absolute
// column z-score, min-max scaled; a row is anomalous when it exceeds the
// threshold. For iqr the score is the out-of-bounds column fraction and any
// outlying column marks the row.
func (s *Statistical) Predict(matrix [][]float64) ([]int, []float64, error) {
	if err := checkMatrix(matrix, s.arity); err != nil {
		return nil, nil, err
	}

	labels := make([]int, len(matrix))
	scores := make([]float64, len(matrix))

	switch s.Method {
	case MethodZScore:
		maxZ := make([]float64, len(matrix))

		for i, row := range matrix {
			for j, v := range row {
				z := (v - s.means[j]) / s.stds[j]
				if z < 0 {
					z = -z
				}

				if z > maxZ[i] {
					maxZ[i] = z
				}
			}

			if maxZ[i] > s.Threshold {
				labels[i] = LabelAnomaly
			} else {
				labels[i] = LabelInlier
			}
		}

		scores = minMax(maxZ)
	case MethodIQR:
		for i, row := range matrix {
			outliers := 0

			for j, v := range row {
				lower := s.q1[j] - s.Threshold*s.iqr[j]
				upper := s.q3[j] + s.Threshold*s.iqr[j]

				if v < lower || v > upper {
					outliers++
				}
			}

			scores[i] = float64(outliers) / float64(s.arity)
			if outliers > 0 {
				labels[i] = LabelAnomaly
			} else {
				labels[i] = LabelInlier
			}
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMethod, s.Method)
	}

	return labels, scores, nil
}

// FitPredict implements Detector.
func (s *Statistical) FitPredict(matrix [][]float64) ([]int, []float64, error) {
	if err := s.Fit(matrix); err != nil {
		return nil, nil, err
	}

	return s.Predict(matrix)
}

// StatisticalState is the gob-serializable trained state of the statistical
// detector.
type StatisticalState struct {
	Method    string
	Threshold float64
	Means     []float64
	Stds      []float64
	Q1        []float64
	Q3        []float64
	IQR       []float64
	Arity     int
}

// TrainedState implements Persistable.
func (s *Statistical) TrainedState() (any, error) {
	if s.arity == 0 {
		return nil, ErrNotFitted
	}

	return &StatisticalState{
		Method:    s.Method,
		Threshold: s.Threshold,
		Means:     s.means,
		Stds:      s.stds,
		Q1:        s.q1,
		Q3:        s.q3,
		IQR:       s.iqr,
		Arity:     s.arity,
	}, nil
}

// RestoreState implements Persistable.
func (s *Statistical) RestoreState(state any) error {
	st, ok := state.(*StatisticalState)
	if !ok {
		return fmt.Errorf("restore statistical detector: unexpected state type %T", state)
	}

	s.Method = st.Method
	s.Threshold = st.Threshold
	s.means = st.Means
	s.stds = st.Stds
	s.q1 = st.Q1
	s.q3 = st.Q3
	s.iqr = st.IQR
	s.arity = st.Arity

	return nil
}
