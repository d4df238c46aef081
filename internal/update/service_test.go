package update

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/security"
)

const testBundle = `{
	"type": "bundle",
	"objects": [
		{
			"type": "attack-pattern",
			"name": "Brute Force",
			"description": "Adversaries may use brute force techniques.",
			"external_references": [
				{"source_name": "mitre-attack", "external_id": "T1110"}
			],
			"kill_chain_phases": [{"phase_name": "credential-access"}],
			"x_mitre_platforms": ["Windows", "Linux"]
		},
		{
			"type": "intrusion-set",
			"name": "not a technique"
		}
	]
}`

func newTestService(t *testing.T) (*Service, *store.Store, string, string) {
	t.Helper()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	updatesDir := t.TempDir()
	modelsDir := t.TempDir()

	return NewService(st, updatesDir, modelsDir, nil), st, updatesDir, modelsDir
}

func writePackage(t *testing.T, privatePEM []byte, payload security.UpdatePayload) string {
	t.Helper()

	pkg, err := security.BuildUpdatePackage(privatePEM, payload)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "update.qup")
	require.NoError(t, pkg.WriteFile(path))

	return path
}

func TestApplyMitreUpdate(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, st, _, _ := newTestService(t)

	path := writePackage(t, private, security.UpdatePayload{
		Type:    TypeMitre,
		Version: "2026.1",
		Data:    json.RawMessage(testBundle),
	})

	result, err := svc.Apply(context.Background(), path, public)
	require.NoError(t, err)
	assert.Equal(t, TypeMitre, result.Type)
	assert.Equal(t, "2026.1", result.Version)
	assert.Equal(t, 1, result.Items)

	technique, ok := st.Lookup("T1110")
	require.True(t, ok)
	assert.Equal(t, "Brute Force", technique.Name)
	assert.Equal(t, "credential_access", technique.Tactic)

	history, err := svc.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, TypeMitre, history[0].Type)
}

func TestApplyModelUpdateStagesFiles(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, _, modelsDir := newTestService(t)

	files := map[string]string{
		"isolation_forest.gob.lz4": base64.StdEncoding.EncodeToString([]byte("model-bytes")),
	}
	data, err := json.Marshal(files)
	require.NoError(t, err)

	path := writePackage(t, private, security.UpdatePayload{
		Type:    TypeModel,
		Version: "1.1",
		Data:    data,
	})

	result, err := svc.Apply(context.Background(), path, public)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Items)

	staged, err := os.ReadFile(filepath.Join(modelsDir, "isolation_forest.gob.lz4"))
	require.NoError(t, err)
	assert.Equal(t, "model-bytes", string(staged))
}

func TestApplyRejectsPathEscape(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, _, _ := newTestService(t)

	files := map[string]string{
		"../evil.gob": base64.StdEncoding.EncodeToString([]byte("nope")),
	}
	data, err := json.Marshal(files)
	require.NoError(t, err)

	path := writePackage(t, private, security.UpdatePayload{Type: TypeModel, Data: data})

	_, err = svc.Apply(context.Background(), path, public)
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestApplyRulesUpdate(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, updatesDir, _ := newTestService(t)

	path := writePackage(t, private, security.UpdatePayload{
		Type:    TypeRules,
		Version: "7",
		Data:    json.RawMessage(`{"keywords": {"mimikatz": 0.98}}`),
	})

	result, err := svc.Apply(context.Background(), path, public)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Items)

	staged, err := os.ReadFile(filepath.Join(updatesDir, "rules_7.json"))
	require.NoError(t, err)
	assert.Contains(t, string(staged), "mimikatz")
}

func TestApplyRejectsTamperedPackage(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, _, _ := newTestService(t)

	path := writePackage(t, private, security.UpdatePayload{
		Type: TypeMitre,
		Data: json.RawMessage(testBundle),
	})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var pkg security.UpdatePackage
	require.NoError(t, json.Unmarshal(raw, &pkg))

	pkg.Payload = `{"type":"mitre","data":{"objects":[]}}`
	require.NoError(t, pkg.WriteFile(path))

	_, err = svc.Apply(context.Background(), path, public)
	assert.ErrorIs(t, err, security.ErrHashMismatch)
}

func TestApplyUnknownType(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, _, _ := newTestService(t)

	path := writePackage(t, private, security.UpdatePayload{
		Type: "firmware",
		Data: json.RawMessage(`{}`),
	})

	_, err = svc.Apply(context.Background(), path, public)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestHistoryAccumulates(t *testing.T) {
	t.Parallel()

	private, public, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)

	svc, _, _, _ := newTestService(t)

	for _, version := range []string{"1", "2"} {
		path := writePackage(t, private, security.UpdatePayload{
			Type:    TypeRules,
			Version: version,
			Data:    json.RawMessage(`{}`),
		})

		_, err = svc.Apply(context.Background(), path, public)
		require.NoError(t, err)
	}

	history, err := svc.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1", history[0].Version)
	assert.Equal(t, "2", history[1].Version)
}
