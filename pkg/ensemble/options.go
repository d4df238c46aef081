package ensemble

// Algorithm names accepted by Detect. The three base names match the
// detector names; AlgorithmEnsemble runs all of them plus the keyword
// engine.
const (
	AlgorithmEnsemble = "ensemble"
)

// Blend weights for single-algorithm runs with raw logs present.
const (
	mlBlendWeight      = 0.75
	keywordBlendWeight = 0.25
)

// DefaultLabelPercentile marks the top 15% of calibrated scores as
// anomalous.
const DefaultLabelPercentile = 85.0

// DefaultContamination is the assumed anomaly ratio when the caller does not
// supply one.
const DefaultContamination = 0.05

// Options control a single Detect run.
type Options struct {
	// Algorithm selects a base detector by name, or AlgorithmEnsemble.
	Algorithm string

	// Contamination is the expected anomaly ratio handed to the detectors.
	Contamination float64

	// ForceRetrain skips the model store and always fits fresh models.
	ForceRetrain bool

	// LabelPercentile is the calibrated-score percentile above which rows
	// are labeled anomalous. Zero means DefaultLabelPercentile.
	LabelPercentile float64

	// MaxKernelSamples caps the kernel detector's retained training set.
	// Zero or negative keeps the detector default.
	MaxKernelSamples int

	// Seed seeds the randomized detectors. Zero keeps the detector default.
	Seed int64
}

func (o *Options) normalize() {
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmEnsemble
	}

	if o.Contamination <= 0 {
		o.Contamination = DefaultContamination
	}

	if o.LabelPercentile <= 0 {
		o.LabelPercentile = DefaultLabelPercentile
	}
}
