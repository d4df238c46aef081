package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIDGenerates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "node_id")

	id, err := LoadOrCreateID(path)
	require.NoError(t, err)

	_, err = uuid.Parse(id)
	require.NoError(t, err)

	// Subsequent loads return the same identity.
	again, err := LoadOrCreateID(path)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestLoadOrCreateIDTrimsExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "node_id")
	require.NoError(t, os.WriteFile(path, []byte("  abc-123 \n"), 0o600))

	id, err := LoadOrCreateID(path)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestLoadOrCreateIDReplacesEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "node_id")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	id, err := LoadOrCreateID(path)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
