// Package session orchestrates analysis runs: it pulls logs from the store,
// extracts features, scores them through the detection ensemble, maps
// anomalies to ATT&CK techniques, and persists the results under a session
// ID.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/detect"
	"github.com/0Ankit0-0/quorum/pkg/ensemble"
	"github.com/0Ankit0-0/quorum/pkg/features"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
	"github.com/0Ankit0-0/quorum/pkg/mitre"
)

// Defaults applied when Params leave a knob unset.
const (
	DefaultThreshold             = 0.70
	DefaultChunkSize             = 10000
	DefaultLargeDatasetThreshold = 100000
)

// Params bound one analysis run.
type Params struct {
	// Algorithm selects the detector; empty means the full ensemble.
	Algorithm string

	// Start and End bound the log window. Nil means unbounded.
	Start *time.Time
	End   *time.Time

	// Threshold is the minimum calibrated score persisted as an anomaly.
	// Zero means the manager default.
	Threshold float64

	// Contamination is the expected anomaly ratio.
	Contamination float64

	// ForceRetrain bypasses persisted models.
	ForceRetrain bool
}

// Result summarizes a completed analysis run.
type Result struct {
	SessionID    string          `json:"session_id"`
	LogsAnalyzed int64           `json:"logs_analyzed"`
	Threshold    float64         `json:"threshold"`
	Algorithm    string          `json:"algorithm"`
	Anomalies    []store.Anomaly `json:"anomalies"`
	Elapsed      time.Duration   `json:"-"`
}

// Manager runs analysis sessions.
type Manager struct {
	store   *store.Store
	engine  *ensemble.Ensemble
	mapper  *mitre.Mapper
	metrics *observability.Metrics
	logger  *slog.Logger

	defaultThreshold float64
	chunkSize        int
	largeThreshold   int
	svmMaxSamples    int
	randomSeed       int64
}

// Option adjusts manager defaults.
type Option func(*Manager)

// WithDefaultThreshold overrides the fallback anomaly threshold.
func WithDefaultThreshold(threshold float64) Option {
	return func(m *Manager) { m.defaultThreshold = threshold }
}

// WithChunking sets the chunk size and the dataset size above which chunked
// processing kicks in.
func WithChunking(chunkSize, largeThreshold int) Option {
	return func(m *Manager) {
		if chunkSize > 0 {
			m.chunkSize = chunkSize
		}

		if largeThreshold > 0 {
			m.largeThreshold = largeThreshold
		}
	}
}

// WithDetectorTuning forwards the kernel sampling cap and the random seed to
// the detectors. Zero values keep the detector defaults.
func WithDetectorTuning(svmMaxSamples int, seed int64) Option {
	return func(m *Manager) {
		m.svmMaxSamples = svmMaxSamples
		m.randomSeed = seed
	}
}

// NewManager wires a session manager. The mapper resolves techniques through
// the store-backed catalog; metrics and logger may be nil.
func NewManager(st *store.Store, engine *ensemble.Ensemble, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:            st,
		engine:           engine,
		mapper:           mitre.NewMapper(st),
		metrics:          metrics,
		logger:           logger,
		defaultThreshold: DefaultThreshold,
		chunkSize:        DefaultChunkSize,
		largeThreshold:   DefaultLargeDatasetThreshold,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Analyze runs one full analysis session over the stored logs.
func (m *Manager) Analyze(ctx context.Context, params Params) (*Result, error) {
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = m.defaultThreshold
	}

	algorithm := params.Algorithm
	if algorithm == "" {
		algorithm = ensemble.AlgorithmEnsemble
	}

	sessionID := uuid.NewString()
	started := time.Now()

	sessionParams := map[string]any{
		"algorithm":     algorithm,
		"threshold":     threshold,
		"contamination": params.Contamination,
	}
	if params.Start != nil {
		sessionParams["start_time"] = params.Start.UTC().Format(time.RFC3339)
	}
	if params.End != nil {
		sessionParams["end_time"] = params.End.UTC().Format(time.RFC3339)
	}

	err := m.store.CreateSession(ctx, sessionID, sessionParams)
	if err != nil {
		return nil, err
	}

	result, err := m.run(ctx, sessionID, algorithm, threshold, params)
	if err != nil {
		failErr := m.store.FailSession(ctx, sessionID, err)
		if failErr != nil {
			m.logger.Warn("failed to mark session failed", "session_id", sessionID, "error", failErr)
		}

		return nil, err
	}

	result.Elapsed = time.Since(started)

	err = m.store.FinishSession(ctx, sessionID, result.LogsAnalyzed, int64(len(result.Anomalies)))
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.SessionDuration.Observe(result.Elapsed.Seconds())
	}

	m.logger.Info("analysis session complete",
		"session_id", sessionID,
		"logs_analyzed", result.LogsAnalyzed,
		"anomalies", len(result.Anomalies),
		"elapsed", result.Elapsed)

	return result, nil
}

func (m *Manager) run(ctx context.Context, sessionID, algorithm string, threshold float64, params Params) (*Result, error) {
	records, err := m.store.QueryLogs(ctx, store.LogFilter{
		Start: params.Start,
		End:   params.End,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID:    sessionID,
		LogsAnalyzed: int64(len(records)),
		Threshold:    threshold,
		Algorithm:    algorithm,
	}

	// Nothing in the window is a clean result, not a failure.
	if len(records) == 0 {
		m.logger.Info("no logs in analysis window", "session_id", sessionID)

		return result, nil
	}

	opts := ensemble.Options{
		Algorithm:        algorithm,
		Contamination:    params.Contamination,
		ForceRetrain:     params.ForceRetrain,
		MaxKernelSamples: m.svmMaxSamples,
		Seed:             m.randomSeed,
	}

	chunk := len(records)
	if len(records) > m.largeThreshold {
		chunk = m.chunkSize

		m.logger.Info("large dataset, processing in chunks",
			"session_id", sessionID, "records", len(records), "chunk_size", chunk)
	}

	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}

		anomalies, chunkErr := m.scoreBatch(ctx, sessionID, threshold, records[start:end], opts)
		if chunkErr != nil {
			return nil, chunkErr
		}

		result.Anomalies = append(result.Anomalies, anomalies...)
	}

	if len(result.Anomalies) > 0 {
		err = m.store.InsertAnomalies(ctx, result.Anomalies)
		if err != nil {
			return nil, err
		}
	}

	if m.metrics != nil {
		for i := range result.Anomalies {
			m.metrics.AnomaliesDetected.WithLabelValues(result.Anomalies[i].Severity).Inc()
		}
	}

	return result, nil
}

func (m *Manager) scoreBatch(ctx context.Context, sessionID string, threshold float64, records []logdata.Record, opts ensemble.Options) ([]store.Anomaly, error) {
	extractor := features.NewExtractor()
	matrix, _ := extractor.ExtractBatch(records)

	labels, scores, err := m.engine.Detect(ctx, matrix, records, opts)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	var anomalies []store.Anomaly

	for i, score := range scores {
		// A row is anomalous only when the percentile labeling agrees
		// with the score threshold.
		if labels[i] != detect.LabelAnomaly || score < threshold {
			continue
		}

		anomaly := store.Anomaly{
			LogID:        records[i].ID,
			AnomalyScore: score,
			Algorithm:    opts.Algorithm,
			Features:     features.Snapshot(matrix[i]),
			Explanation:  features.Explain(matrix[i], score),
			Severity:     logdata.SeverityBand(score),
			SessionID:    sessionID,
		}

		if matches := m.mapper.Map(&records[i]); len(matches) > 0 {
			anomaly.MitreTechnique = matches[0].TechniqueID
			anomaly.MitreTactic = matches[0].Tactic
		}

		anomalies = append(anomalies, anomaly)
	}

	return anomalies, nil
}

// Results returns a finished session together with its persisted anomalies.
func (m *Manager) Results(ctx context.Context, sessionID string) (*store.Session, []store.Anomaly, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	anomalies, err := m.store.AnomaliesBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	return session, anomalies, nil
}
