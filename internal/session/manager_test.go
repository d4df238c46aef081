package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/ensemble"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
	"github.com/0Ankit0-0/quorum/pkg/modelstore"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := ensemble.New(modelstore.New(t.TempDir()), nil)
	manager := NewManager(st, engine, observability.NewMetrics(), nil)

	return manager, st
}

// seedLogs inserts a mostly-quiet workload with a burst of suspicious
// off-hours activity at the end.
func seedLogs(t *testing.T, st *store.Store, quiet, noisy int) {
	t.Helper()

	var records []logdata.Record

	base := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	for i := 0; i < quiet; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		records = append(records, logdata.Record{
			Timestamp: &ts,
			Source:    "syslog",
			EventType: "service_status",
			Severity:  logdata.SeverityInfo,
			Message:   fmt.Sprintf("service heartbeat ok seq=%d", i),
			Hostname:  "ws-01",
			Username:  "svc-monitor",
		})
	}

	night := time.Date(2026, 3, 17, 2, 30, 0, 0, time.UTC)
	for i := 0; i < noisy; i++ {
		ts := night.Add(time.Duration(i) * time.Second)
		records = append(records, logdata.Record{
			Timestamp: &ts,
			Source:    "auth.log",
			EventID:   "4625",
			EventType: "logon_failure",
			Severity:  logdata.SeverityCritical,
			Message:   "failed password for invalid user admin, brute force suspected",
			Hostname:  "ws-01",
			Username:  "admin",
		})
	}

	_, err := st.InsertLogs(context.Background(), records)
	require.NoError(t, err)
}

func TestAnalyzeFlagsSuspiciousBurst(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	seedLogs(t, st, 60, 4)

	result, err := manager.Analyze(context.Background(), Params{Threshold: 0.55})
	require.NoError(t, err)

	assert.Equal(t, int64(64), result.LogsAnalyzed)
	assert.Equal(t, ensemble.AlgorithmEnsemble, result.Algorithm)
	require.NotEmpty(t, result.Anomalies)

	for _, a := range result.Anomalies {
		assert.GreaterOrEqual(t, a.AnomalyScore, 0.55)
		assert.NotEmpty(t, a.Severity)
		assert.NotEmpty(t, a.Explanation)
		assert.Equal(t, result.SessionID, a.SessionID)
	}

	// The brute-force events carry an event-ID technique mapping.
	var mapped int
	for _, a := range result.Anomalies {
		if a.MitreTechnique == "T1110" {
			mapped++
		}
	}
	assert.Positive(t, mapped)

	session, err := st.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, session.Status)
	assert.Equal(t, int64(64), session.LogsAnalyzed)
}

func TestAnalyzeEmptyWindowCompletes(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	seedLogs(t, st, 10, 0)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := manager.Analyze(context.Background(), Params{Start: &start})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.LogsAnalyzed)
	assert.Empty(t, result.Anomalies)

	sessions, err := st.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, store.SessionCompleted, sessions[0].Status)
	assert.Equal(t, int64(0), sessions[0].LogsAnalyzed)
	assert.Equal(t, int64(0), sessions[0].AnomaliesDetected)
}

func TestAnalyzeUniformLogsBoundedByLabeling(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)

	ts := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	records := make([]logdata.Record, 40)
	for i := range records {
		records[i] = logdata.Record{
			Timestamp: &ts,
			Source:    "syslog",
			EventType: "service_status",
			Severity:  logdata.SeverityInfo,
			Message:   "service heartbeat ok",
			Hostname:  "ws-01",
		}
	}

	_, err := st.InsertLogs(context.Background(), records)
	require.NoError(t, err)

	// A permissive threshold alone must not flag the whole batch; only rows
	// the percentile labeling marks anomalous are persisted.
	result, err := manager.Analyze(context.Background(), Params{Threshold: 0.11})
	require.NoError(t, err)

	assert.Equal(t, int64(40), result.LogsAnalyzed)
	assert.NotEmpty(t, result.Anomalies)
	assert.LessOrEqual(t, len(result.Anomalies), 7)
}

func TestAnalyzeChunked(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	seedLogs(t, st, 90, 4)

	// Force the chunked path with a tiny threshold.
	WithChunking(40, 50)(manager)

	result, err := manager.Analyze(context.Background(), Params{Threshold: 0.55})
	require.NoError(t, err)
	assert.Equal(t, int64(94), result.LogsAnalyzed)
}

func TestAnalyzeThresholdDefault(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	seedLogs(t, st, 30, 2)

	result, err := manager.Analyze(context.Background(), Params{})
	require.NoError(t, err)
	assert.InDelta(t, DefaultThreshold, result.Threshold, 1e-9)

	for _, a := range result.Anomalies {
		assert.GreaterOrEqual(t, a.AnomalyScore, DefaultThreshold)
	}
}

func TestResults(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	seedLogs(t, st, 40, 3)

	result, err := manager.Analyze(context.Background(), Params{Threshold: 0.55})
	require.NoError(t, err)

	session, anomalies, err := manager.Results(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, session.Status)
	assert.Len(t, anomalies, len(result.Anomalies))

	_, _, err = manager.Results(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
