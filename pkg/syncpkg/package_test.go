package syncpkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/pkg/security"
)

func testAnomalies(n int) []Anomaly {
	anomalies := make([]Anomaly, n)
	for i := range anomalies {
		anomalies[i] = Anomaly{
			ID:             int64(i + 1),
			AnomalyScore:   0.91,
			Severity:       "CRITICAL",
			Algorithm:      "ensemble",
			MitreTechnique: "T1110",
			MitreTactic:    "Credential Access",
			Source:         "sshd",
			Message:        "Failed password for invalid user root",
		}
	}

	return anomalies
}

func testSummary() NodeSummary {
	return NodeSummary{
		NodeID:         "node-aaaa",
		Hostname:       "terminal-1",
		Role:           "terminal",
		TotalLogs:      1200,
		TotalAnomalies: 40,
	}
}

func TestPackageSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	privPEM, pubPEM, err := security.GenerateKeyPair(security.DefaultKeySize)
	require.NoError(t, err)

	pkg, err := New("node-aaaa", "hub", testAnomalies(3), testSummary())
	require.NoError(t, err)
	require.NoError(t, pkg.Sign(privPEM))

	path := filepath.Join(t.TempDir(), "sync_test"+Extension)
	require.NoError(t, pkg.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, loaded.VerifySignature(pubPEM))

	assert.Equal(t, pkg.PackageID, loaded.PackageID)
	assert.Len(t, loaded.Anomalies, 3)
}

func TestPackageTamperDetected(t *testing.T) {
	t.Parallel()

	privPEM, pubPEM, err := security.GenerateKeyPair(security.DefaultKeySize)
	require.NoError(t, err)

	pkg, err := New("node-aaaa", "hub", testAnomalies(2), testSummary())
	require.NoError(t, err)
	require.NoError(t, pkg.Sign(privPEM))

	pkg.Anomalies[0].AnomalyScore = 0.01

	err = pkg.VerifySignature(pubPEM)
	assert.ErrorIs(t, err, security.ErrInvalidSignature)
}

func TestPackageUnsigned(t *testing.T) {
	t.Parallel()

	_, pubPEM, err := security.GenerateKeyPair(security.DefaultKeySize)
	require.NoError(t, err)

	pkg, err := New("node-aaaa", "hub", nil, testSummary())
	require.NoError(t, err)

	assert.ErrorIs(t, pkg.VerifySignature(pubPEM), ErrUnsigned)
}

func TestPackageAnomalyCap(t *testing.T) {
	t.Parallel()

	_, err := New("node-aaaa", "hub", testAnomalies(MaxAnomalies+1), testSummary())
	assert.ErrorIs(t, err, ErrTooManyAnomalies)

	pkg, err := New("node-aaaa", "hub", testAnomalies(MaxAnomalies), testSummary())
	require.NoError(t, err)
	assert.Len(t, pkg.Anomalies, MaxAnomalies)
}

func TestReadFileRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := map[string]string{
		"missing_fields": `{"package_id":"p1"}`,
		"bad_score":      `{"package_id":"p1","source_node":"n1","target_node":"hub","sync_method":"usb","created_at":"2026-01-01T00:00:00Z","anomalies":[{"id":1,"anomaly_score":3.5,"severity":"HIGH","algorithm":"ensemble"}],"logs_summary":{"node_id":"n1","hostname":"h"}}`,
		"empty_node":     `{"package_id":"p1","source_node":"","target_node":"hub","sync_method":"usb","created_at":"2026-01-01T00:00:00Z","anomalies":[],"logs_summary":{"node_id":"n1","hostname":"h"}}`,
	}

	for name, body := range cases {
		path := filepath.Join(dir, name+Extension)
		require.NoError(t, writeTestFile(path, body))

		_, err := ReadFile(path)
		assert.ErrorIs(t, err, ErrSchemaViolation, name)
	}
}

func TestCanonicalJSONIsStable(t *testing.T) {
	t.Parallel()

	a, err := CanonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": true, "y": "v"}})
	require.NoError(t, err)

	b, err := CanonicalJSON(map[string]any{"a": map[string]any{"y": "v", "z": true}, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"y":"v","z":true},"b":1}`, string(a))
	assert.Equal(t, a, b)
}

func TestCanonicalJSONSignatureIndependentOfFieldOrder(t *testing.T) {
	t.Parallel()

	pkg, err := New("node-aaaa", "hub", testAnomalies(1), testSummary())
	require.NoError(t, err)

	first, err := pkg.signingBytes()
	require.NoError(t, err)

	second, err := pkg.signingBytes()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func writeTestFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}
