package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
	"github.com/0Ankit0-0/quorum/pkg/mitre"
	"github.com/0Ankit0-0/quorum/pkg/syncpkg"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func testRecord(offset time.Duration) logdata.Record {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).Add(offset)
	pid := int64(4321)

	return logdata.Record{
		Timestamp:   &ts,
		Source:      "auth.log",
		EventID:     "4625",
		EventType:   "logon_failure",
		Severity:    logdata.SeverityHigh,
		Message:     "failed password for root",
		Hostname:    "ws-07",
		Username:    "root",
		ProcessName: "sshd",
		ProcessID:   &pid,
		Raw:         "Mar 14 09:00:00 ws-07 sshd[4321]: failed password for root",
		Metadata:    map[string]string{"facility": "auth"},
	}
}

func TestInsertAndQueryLogs(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	records := []logdata.Record{
		testRecord(0),
		testRecord(time.Minute),
		testRecord(2 * time.Minute),
	}

	ids, err := s.InsertLogs(ctx, records)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])

	got, err := s.QueryLogs(ctx, LogFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "auth.log", first.Source)
	assert.Equal(t, "4625", first.EventID)
	assert.Equal(t, "failed password for root", first.Message)
	require.NotNil(t, first.ProcessID)
	assert.Equal(t, int64(4321), *first.ProcessID)
	assert.Equal(t, "auth", first.Metadata["facility"])
	require.NotNil(t, first.Timestamp)
	assert.True(t, first.Timestamp.Before(*got[2].Timestamp))
}

func TestQueryLogsFilters(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	records := make([]logdata.Record, 5)
	for i := range records {
		records[i] = testRecord(time.Duration(i) * time.Hour)
	}
	records[4].Source = "syslog"

	_, err := s.InsertLogs(ctx, records)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	got, err := s.QueryLogs(ctx, LogFilter{Start: &start})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.QueryLogs(ctx, LogFilter{Source: "syslog"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.QueryLogs(ctx, LogFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetLogNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.GetLog(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogStats(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	records := []logdata.Record{testRecord(0), testRecord(time.Minute)}
	records[1].Severity = logdata.SeverityLow

	_, err := s.InsertLogs(ctx, records)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.BySeverity["HIGH"])
	assert.Equal(t, int64(1), stats.BySeverity["LOW"])
	assert.Equal(t, int64(2), stats.BySource["auth.log"])
	assert.NotEmpty(t, stats.Earliest)
}

func TestAnomalyRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertLogs(ctx, []logdata.Record{testRecord(0)})
	require.NoError(t, err)

	anomalies := []Anomaly{{
		LogID:          ids[0],
		AnomalyScore:   0.91,
		Algorithm:      "ensemble",
		Features:       map[string]float64{"severity_level": 4},
		Explanation:    "high severity off-hours event",
		Severity:       "CRITICAL",
		MitreTechnique: "T1110",
		MitreTactic:    "credential_access",
		SessionID:      "sess-1",
	}, {
		LogID:        ids[0],
		AnomalyScore: 0.62,
		Algorithm:    "ensemble",
		Severity:     "MEDIUM",
		SessionID:    "sess-1",
	}}

	require.NoError(t, s.InsertAnomalies(ctx, anomalies))

	got, err := s.AnomaliesBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.91, got[0].AnomalyScore, 1e-9)
	assert.Equal(t, "T1110", got[0].MitreTechnique)
	assert.InDelta(t, 4.0, got[0].Features["severity_level"], 1e-9)

	count, err := s.CountAnomalies(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTopAnomaliesForExport(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertLogs(ctx, []logdata.Record{testRecord(0)})
	require.NoError(t, err)

	var anomalies []Anomaly
	for i := 0; i < 10; i++ {
		anomalies = append(anomalies, Anomaly{
			LogID:        ids[0],
			AnomalyScore: 0.5 + float64(i)*0.04,
			Algorithm:    "ensemble",
			Severity:     "HIGH",
			SessionID:    "sess-1",
		})
	}
	require.NoError(t, s.InsertAnomalies(ctx, anomalies))

	exported, err := s.TopAnomaliesForExport(ctx, 3)
	require.NoError(t, err)
	require.Len(t, exported, 3)
	assert.InDelta(t, 0.86, exported[0].AnomalyScore, 1e-9)
	assert.Equal(t, "failed password for root", exported[0].Message)
	assert.Equal(t, "ws-07", exported[0].Hostname)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	params := map[string]any{"algorithm": "ensemble", "threshold": 0.7}
	require.NoError(t, s.CreateSession(ctx, "sess-1", params))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionRunning, got.Status)
	assert.Equal(t, "ensemble", got.Parameters["algorithm"])

	require.NoError(t, s.FinishSession(ctx, "sess-1", 1000, 42))

	got, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, got.Status)
	assert.Equal(t, int64(1000), got.LogsAnalyzed)
	assert.Equal(t, int64(42), got.AnomaliesDetected)
	assert.NotEmpty(t, got.EndTime)
}

func TestFailSessionRecordsError(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-err", nil))
	require.NoError(t, s.FailSession(ctx, "sess-err", errors.New("no logs in range")))

	got, err := s.GetSession(ctx, "sess-err")
	require.NoError(t, err)
	assert.Equal(t, SessionFailed, got.Status)
	assert.Equal(t, "no logs in range", got.Metadata["error"])
}

func TestEndUnknownSession(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	err := s.FinishSession(context.Background(), "missing", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-a", nil))
	require.NoError(t, s.CreateSession(ctx, "sess-b", nil))

	sessions, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func hubAnomaly(id int64, technique, tactic string, score float64) syncpkg.Anomaly {
	return syncpkg.Anomaly{
		ID:             id,
		AnomalyScore:   score,
		Severity:       "HIGH",
		Algorithm:      "ensemble",
		MitreTechnique: technique,
		MitreTactic:    tactic,
		Timestamp:      "2026-03-14T09:00:00Z",
		Source:         "auth.log",
		Message:        "failed password",
	}
}

func TestImportHubAnomaliesDedup(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	batch := []syncpkg.Anomaly{
		hubAnomaly(1, "T1110", "credential_access", 0.9),
		hubAnomaly(2, "T1059", "execution", 0.8),
	}

	merged, err := s.ImportHubAnomalies(ctx, "node-a", batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)

	// Re-importing the same package merges nothing.
	merged, err = s.ImportHubAnomalies(ctx, "node-a", batch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), merged)

	// The same IDs from a different node are distinct rows.
	merged, err = s.ImportHubAnomalies(ctx, "node-b", batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)

	count, err := s.CountHubAnomalies(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestCorrelations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ImportHubAnomalies(ctx, "node-a", []syncpkg.Anomaly{
		hubAnomaly(1, "T1110", "credential_access", 0.9),
		hubAnomaly(2, "T1078", "defense_evasion", 0.6),
	})
	require.NoError(t, err)

	_, err = s.ImportHubAnomalies(ctx, "node-b", []syncpkg.Anomaly{
		hubAnomaly(1, "T1110", "credential_access", 0.95),
	})
	require.NoError(t, err)

	_, err = s.ImportHubAnomalies(ctx, "node-c", []syncpkg.Anomaly{
		hubAnomaly(1, "T1110", "credential_access", 0.7),
	})
	require.NoError(t, err)

	correlations, err := s.Correlations(ctx)
	require.NoError(t, err)
	require.Len(t, correlations, 1)

	c := correlations[0]
	assert.Equal(t, "T1110", c.TechniqueID)
	assert.Equal(t, int64(3), c.NodeCount)
	assert.Equal(t, int64(3), c.Occurrences)
	assert.InDelta(t, 0.95, c.MaxScore, 1e-9)
	assert.InDelta(t, 0.85, c.AvgScore, 1e-9)
	assert.Equal(t, "2026-03-14T09:00:00Z", c.FirstSeen)
	assert.Equal(t, "2026-03-14T09:00:00Z", c.LastSeen)
	assert.Equal(t, "CRITICAL", c.ThreatLevel)
	assert.True(t, c.IsCoordinated)
	assert.Len(t, c.Nodes, 3)
}

func TestCorrelationThreatLevels(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, node := range []string{"node-a", "node-b"} {
		_, err := s.ImportHubAnomalies(ctx, node, []syncpkg.Anomaly{
			hubAnomaly(1, "T1059", "execution", 0.8),
		})
		require.NoError(t, err)
	}

	correlations, err := s.Correlations(ctx)
	require.NoError(t, err)
	require.Len(t, correlations, 1)
	assert.Equal(t, "HIGH", correlations[0].ThreatLevel)
}

func TestNodeRegistry(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	local := Node{
		NodeID:    "node-local",
		Hostname:  "hub-01",
		Role:      RoleHub,
		TotalLogs: 12000,
	}
	require.NoError(t, s.UpsertLocalNode(ctx, local))
	require.NoError(t, s.UpsertLocalNode(ctx, local))

	summary := syncpkg.NodeSummary{
		NodeID:         "node-remote",
		Hostname:       "ws-07",
		Role:           RoleCollector,
		TotalLogs:      500,
		TotalAnomalies: 12,
		OSInfo:         "Windows 10",
		Version:        "1.2.0",
	}
	require.NoError(t, s.RegisterRemoteNode(ctx, summary, "usb"))

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	remote, err := s.GetNode(ctx, "node-remote")
	require.NoError(t, err)
	assert.Equal(t, NodeInactive, remote.Status)
	assert.Equal(t, "Windows 10", remote.OSInfo)
	assert.Equal(t, "usb", remote.SyncMethod)

	hub, err := s.GetNode(ctx, "node-local")
	require.NoError(t, err)
	assert.Equal(t, NodeActive, hub.Status)

	require.NoError(t, s.UpdateNodeSyncStats(ctx, "node-remote", 20))

	remote, err = s.GetNode(ctx, "node-remote")
	require.NoError(t, err)
	assert.Equal(t, int64(20), remote.TotalAnomalies)
	assert.NotEmpty(t, remote.LastSync)
}

func TestNodeThreatsAndDistributions(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	critical := hubAnomaly(1, "T1110", "credential_access", 0.95)
	critical.Severity = "CRITICAL"

	_, err := s.ImportHubAnomalies(ctx, "node-a", []syncpkg.Anomaly{
		critical,
		hubAnomaly(2, "T1059", "execution", 0.8),
	})
	require.NoError(t, err)

	threats, err := s.NodeThreats(ctx)
	require.NoError(t, err)
	require.Len(t, threats, 1)
	assert.Equal(t, "node-a", threats[0].NodeID)
	assert.Equal(t, int64(1), threats[0].CriticalCount)
	assert.Equal(t, int64(1), threats[0].HighCount)
	assert.InDelta(t, 0.875, threats[0].AvgScore, 1e-9)

	severities, err := s.SeverityDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), severities["CRITICAL"])
	assert.Equal(t, int64(1), severities["HIGH"])

	tactics, err := s.TacticDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tactics["credential_access"])
	assert.Equal(t, int64(1), tactics["execution"])
}

func TestSyncLog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertSyncLog(ctx, "sync-1", "node-a", "node-hub", "usb", 42, "/mnt/usb/pkg.qsp")
	require.NoError(t, err)

	// Duplicate sync IDs are rejected by the primary key.
	err = s.InsertSyncLog(ctx, "sync-1", "node-a", "node-hub", "usb", 42, "")
	assert.Error(t, err)
}

func TestTechniqueCatalog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	techniques := []mitre.Technique{
		{
			TechniqueID: "T1110",
			Name:        "Brute Force",
			Tactic:      "credential_access",
			Description: "Adversaries may use brute force techniques.",
			Platforms:   []string{"Windows", "Linux"},
		},
		{
			TechniqueID: "T1059",
			Name:        "Command and Scripting Interpreter",
			Tactic:      "execution",
		},
	}

	require.NoError(t, s.ReplaceTechniques(ctx, techniques))

	count, err := s.CountTechniques(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, ok := s.Lookup("T1110")
	require.True(t, ok)
	assert.Equal(t, "Brute Force", got.Name)
	assert.Equal(t, []string{"Windows", "Linux"}, got.Platforms)

	_, ok = s.Lookup("T9999")
	assert.False(t, ok)

	byTactic, err := s.TechniquesByTactic(ctx, "execution")
	require.NoError(t, err)
	require.Len(t, byTactic, 1)
	assert.Equal(t, "T1059", byTactic[0].TechniqueID)

	tactics, err := s.Tactics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"credential_access", "execution"}, tactics)

	// Replacing swaps the whole catalog.
	require.NoError(t, s.ReplaceTechniques(ctx, techniques[:1]))

	count, err = s.CountTechniques(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeviceLog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.InsertDeviceEvent(ctx, DeviceEvent{
			DeviceID:   fmt.Sprintf("usb-%d", i),
			Name:       "SanDisk Ultra",
			MountPoint: "/mnt/usb",
			Event:      "connected",
			RiskLevel:  "medium",
		})
		require.NoError(t, err)
	}

	events, err := s.RecentDeviceEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "usb-2", events[0].DeviceID)
	assert.Equal(t, "connected", events[0].Event)
}
