package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFlag(t *testing.T) {
	t.Parallel()

	ts, err := parseTimeFlag("2026-03-14")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, 2026, ts.Year())

	ts, err = parseTimeFlag("2026-03-14T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 9, ts.Hour())

	ts, err = parseTimeFlag("")
	require.NoError(t, err)
	assert.Nil(t, ts)

	_, err = parseTimeFlag("yesterday")
	assert.Error(t, err)
}

func TestReadRecordsArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"timestamp": "2026-03-14T09:00:00Z", "source": "auth.log", "message": "hello"},
		{"timestamp": "2026-03-14T09:01:00Z", "source": "auth.log", "message": "world"}
	]`), 0o600))

	records, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "hello", records[0].Message)
	require.NotNil(t, records[0].Timestamp)
}

func TestReadRecordsLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"timestamp": "2026-03-14T09:00:00Z", "source": "syslog", "message": "one"}`+"\n"+
			"\n"+
			`{"timestamp": "2026-03-14T09:01:00Z", "source": "syslog", "message": "two"}`+"\n"),
		0o600))

	records, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "two", records[1].Message)
}

func TestReadRecordsBadLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o600))

	_, err := readRecords(path)
	assert.Error(t, err)
}

func TestRenderHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1,234,567", count(1234567))
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "-", ago(""))
	assert.Equal(t, "not a time", ago("not a time"))
	assert.NotEmpty(t, ago(time.Now().UTC().Format(time.RFC3339)))
	assert.Equal(t, "exactly", truncate("exactly", 10))
	assert.Equal(t, "truncat...", truncate("truncated text", 10))
}
