package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
	"github.com/0Ankit0-0/quorum/pkg/security"
	"github.com/0Ankit0-0/quorum/pkg/syncpkg"
)

func testKeys(t *testing.T) (private, public []byte) {
	t.Helper()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	return private, public
}

func newTestService(t *testing.T, nodeID string) (*Service, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := NewService(st, observability.NewMetrics(), nil, Identity{
		NodeID:   nodeID,
		Hostname: "host-" + nodeID,
		Role:     store.RoleCollector,
		OSInfo:   "Linux 6.8",
		Version:  "1.2.0",
	})

	return svc, st
}

func seedAnomalies(t *testing.T, st *store.Store, count int) {
	t.Helper()

	ctx := context.Background()
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	ids, err := st.InsertLogs(ctx, []logdata.Record{{
		Timestamp: &ts,
		Source:    "auth.log",
		EventID:   "4625",
		Severity:  logdata.SeverityHigh,
		Message:   "failed password for root",
		Hostname:  "ws-07",
	}})
	require.NoError(t, err)

	anomalies := make([]store.Anomaly, count)
	for i := range anomalies {
		anomalies[i] = store.Anomaly{
			LogID:          ids[0],
			AnomalyScore:   0.9 - float64(i)*0.001,
			Algorithm:      "ensemble",
			Severity:       "HIGH",
			MitreTechnique: "T1110",
			MitreTactic:    "credential_access",
			SessionID:      "sess-1",
		}
	}

	require.NoError(t, st.InsertAnomalies(ctx, anomalies))
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	private, public := testKeys(t)
	ctx := context.Background()

	collector, collectorStore := newTestService(t, "node-a")
	seedAnomalies(t, collectorStore, 5)

	path, pkg, err := collector.ExportPackage(ctx, "node-hub", t.TempDir(), private)
	require.NoError(t, err)
	assert.Len(t, pkg.Anomalies, 5)
	assert.Equal(t, "node-a", pkg.SourceNode)
	assert.NotEmpty(t, pkg.Signature)

	hub, hubStore := newTestService(t, "node-hub")

	result, err := hub.ImportPackage(ctx, path, public)
	require.NoError(t, err)
	assert.Equal(t, "node-a", result.SourceNode)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, int64(5), result.Merged)
	assert.Equal(t, int64(0), result.Skipped)

	// Re-importing the same package merges nothing new.
	result, err = hub.ImportPackage(ctx, path, public)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Merged)
	assert.Equal(t, int64(5), result.Skipped)

	node, err := hubStore.GetNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, store.NodeInactive, node.Status)
	assert.NotEmpty(t, node.LastSync)
}

func TestImportRejectsWrongKey(t *testing.T) {
	t.Parallel()

	private, _ := testKeys(t)
	_, otherPublic := testKeys(t)
	ctx := context.Background()

	collector, collectorStore := newTestService(t, "node-a")
	seedAnomalies(t, collectorStore, 2)

	path, _, err := collector.ExportPackage(ctx, "node-hub", t.TempDir(), private)
	require.NoError(t, err)

	hub, _ := newTestService(t, "node-hub")

	_, err = hub.ImportPackage(ctx, path, otherPublic)
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrInvalidSignature)
}

func TestExportCapsAnomalies(t *testing.T) {
	t.Parallel()

	private, _ := testKeys(t)
	ctx := context.Background()

	collector, collectorStore := newTestService(t, "node-a")
	seedAnomalies(t, collectorStore, syncpkg.MaxAnomalies+50)

	_, pkg, err := collector.ExportPackage(ctx, "node-hub", t.TempDir(), private)
	require.NoError(t, err)
	assert.Len(t, pkg.Anomalies, syncpkg.MaxAnomalies)
	assert.Equal(t, int64(syncpkg.MaxAnomalies+50), pkg.LogsSummary.TotalAnomalies)
}

func TestDashboardAndCorrelations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub, hubStore := newTestService(t, "node-hub")
	require.NoError(t, hub.RegisterSelf(ctx))

	imports := map[string][]syncpkg.Anomaly{
		"node-a": {
			{ID: 1, AnomalyScore: 0.95, Severity: "CRITICAL", Algorithm: "ensemble",
				MitreTechnique: "T1110", MitreTactic: "credential_access"},
		},
		"node-b": {
			{ID: 1, AnomalyScore: 0.90, Severity: "HIGH", Algorithm: "ensemble",
				MitreTechnique: "T1110", MitreTactic: "credential_access"},
		},
		"node-c": {
			{ID: 1, AnomalyScore: 0.70, Severity: "HIGH", Algorithm: "ensemble",
				MitreTechnique: "T1110", MitreTactic: "credential_access"},
		},
	}

	for node, anomalies := range imports {
		_, err := hubStore.ImportHubAnomalies(ctx, node, anomalies)
		require.NoError(t, err)
	}

	correlations, err := hub.Correlations(ctx)
	require.NoError(t, err)
	require.Len(t, correlations, 1)
	assert.Equal(t, "CRITICAL", correlations[0].ThreatLevel)
	assert.Equal(t, int64(3), correlations[0].NodeCount)

	dashboard, err := hub.BuildDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dashboard.TotalAnomalies)
	assert.Equal(t, int64(1), dashboard.BySeverity["CRITICAL"])
	assert.Equal(t, int64(2), dashboard.BySeverity["HIGH"])
	assert.Equal(t, int64(3), dashboard.ByTactic["credential_access"])
	assert.Len(t, dashboard.NodeThreats, 3)
	require.Len(t, dashboard.Nodes, 1)
	assert.Equal(t, store.NodeActive, dashboard.Nodes[0].Status)
}

func TestExportFilename(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	name := exportFilename("0a1b2c3d-4e5f-6789", at)
	assert.Equal(t, "sync_0a1b2c3d_20260314T093000.qsp", name)
}
