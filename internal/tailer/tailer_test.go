package tailer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

func (s *eventSink) find(substr string) (Event, bool) {
	for _, e := range s.snapshot() {
		if strings.Contains(e.Record.Message, substr) {
			return e, true
		}
	}

	return Event{}, false
}

func (s *eventSink) has(substr string) bool {
	_, ok := s.find(substr)

	return ok
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func runTailer(t *testing.T, st *store.Store, sink *eventSink, paths ...string) *Tailer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	tl := New(Options{
		PollInterval: 20 * time.Millisecond,
		FromStart:    true,
	}, st, nil, nil, sink.add, paths...)

	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("tailer did not stop")
		}
	})

	return tl
}

func TestTailerEmitsEveryLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "auth.log")
	appendLine(t, path, "Mar 14 09:26:01 ws-07 sshd[4321]: Failed password for root from 10.0.0.5")
	appendLine(t, path, "Mar 14 09:26:02 ws-07 cron[100]: job finished ok")

	sink := &eventSink{}
	runTailer(t, nil, sink, path)

	// Ordinary lines flow through the queue too; only their score differs.
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	alert, ok := sink.find("Failed password")
	require.True(t, ok)
	assert.GreaterOrEqual(t, alert.Score, DefaultPersistThreshold)
	assert.Equal(t, "ws-07", alert.Record.Hostname)
	assert.Equal(t, "sshd", alert.Record.ProcessName)
	require.NotNil(t, alert.Record.ProcessID)
	assert.Equal(t, int64(4321), *alert.Record.ProcessID)

	benign, ok := sink.find("job finished ok")
	require.True(t, ok)
	assert.Less(t, benign.Score, DefaultPersistThreshold)
}

func TestTailerFollowsAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	appendLine(t, path, "boot complete")

	sink := &eventSink{}
	runTailer(t, nil, sink, path)

	time.Sleep(50 * time.Millisecond)
	appendLine(t, path, "2026-03-14T02:10:00Z ws-07 sudo[99]: authentication failed for operator")

	require.Eventually(t, func() bool {
		return sink.has("authentication failed")
	}, 2*time.Second, 10*time.Millisecond)

	e, _ := sink.find("authentication failed")
	assert.Equal(t, "sudo", e.Record.ProcessName)
	require.NotNil(t, e.Record.Timestamp)
	assert.Equal(t, 2026, e.Record.Timestamp.Year())
}

func TestTailerSurvivesRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sys.log")
	appendLine(t, path, "steady state")

	sink := &eventSink{}
	runTailer(t, nil, sink, path)

	require.Eventually(t, func() bool {
		return sink.has("steady state")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(path, filepath.Join(dir, "sys.log.1")))
	appendLine(t, path, "Mar 14 03:00:00 ws-07 sshd[7]: invalid user admin from 10.0.0.9")

	require.Eventually(t, func() bool {
		return sink.has("invalid user")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTailerDrainsOldFileOnRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sys.log")
	appendLine(t, path, "seed line")

	sink := &eventSink{}
	runTailer(t, nil, sink, path)

	require.Eventually(t, func() bool {
		return sink.has("seed line")
	}, 2*time.Second, 10*time.Millisecond)

	// A line written just before the rename must still be delivered from
	// the old handle.
	appendLine(t, path, "written before rotation")
	require.NoError(t, os.Rename(path, filepath.Join(dir, "sys.log.1")))
	appendLine(t, path, "written after rotation")

	require.Eventually(t, func() bool {
		return sink.has("written before rotation") && sink.has("written after rotation")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTailerMultipleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	authPath := filepath.Join(dir, "auth.log")
	appPath := filepath.Join(dir, "app.log")
	appendLine(t, authPath, "from auth")
	appendLine(t, appPath, "from app")

	sink := &eventSink{}
	runTailer(t, nil, sink, authPath, appPath)

	require.Eventually(t, func() bool {
		return sink.has("from auth") && sink.has("from app")
	}, 2*time.Second, 10*time.Millisecond)

	authEvent, _ := sink.find("from auth")
	assert.Equal(t, authPath, authEvent.Record.Source)
}

func TestTailerAddRemoveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	appendLine(t, first, "first line")
	appendLine(t, second, "second line")

	sink := &eventSink{}
	tl := runTailer(t, nil, sink, first)

	require.Eventually(t, func() bool {
		return sink.has("first line")
	}, 2*time.Second, 10*time.Millisecond)

	tl.AddFile(second)

	require.Eventually(t, func() bool {
		return sink.has("second line")
	}, 2*time.Second, 10*time.Millisecond)

	tl.RemoveFile(first)
	time.Sleep(60 * time.Millisecond)
	appendLine(t, first, "after removal")
	time.Sleep(100 * time.Millisecond)

	assert.False(t, sink.has("after removal"))
}

func TestTailerPersistsOnlyAlerts(t *testing.T) {
	t.Parallel()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	path := filepath.Join(t.TempDir(), "auth.log")
	appendLine(t, path, "Mar 14 02:00:00 ws-07 sshd[1]: Failed password for invalid user test")
	appendLine(t, path, "Mar 14 02:00:01 ws-07 cron[2]: Started session 42")

	sink := &eventSink{}
	runTailer(t, st, sink, path)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		count, countErr := st.CountAnomalies(context.Background())

		return countErr == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The benign line reached the listener but never the store.
	logs, err := st.QueryLogs(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "Failed password")
}

func TestParseLineFallsBackToRaw(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	record := parseLine("completely unstructured noise", "/var/log/app.log", now)

	assert.Equal(t, "completely unstructured noise", record.Message)
	assert.Equal(t, "/var/log/app.log", record.Source)
	assert.Empty(t, record.Hostname)
}

func TestParseLineLevels(t *testing.T) {
	t.Parallel()

	now := time.Now()

	record := parseLine("[ERROR] disk quota exceeded", "/var/log/app.log", now)
	assert.Equal(t, logdata.SeverityHigh, record.Severity)
	assert.Equal(t, "disk quota exceeded", record.Message)

	record = parseLine("WARNING: certificate expires soon", "/var/log/app.log", now)
	assert.Equal(t, logdata.SeverityMedium, record.Severity)
}

func TestParseLinePriorityPrefix(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	record := parseLine("<34>Mar 14 09:26:01 ws-07 sshd[4321]: Failed password for root", "/var/log/auth.log", now)
	assert.Equal(t, "ws-07", record.Hostname)
	assert.Equal(t, "sshd", record.ProcessName)
	assert.Equal(t, "Failed password for root", record.Message)
	require.NotNil(t, record.ProcessID)
	assert.Equal(t, int64(4321), *record.ProcessID)
}

func TestParseLineRFC5424(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	record := parseLine("<165>1 2026-03-14T09:26:01.003Z ws-07 sshd 4321 ID47 - Failed password for root", "/var/log/auth.log", now)
	assert.Equal(t, "ws-07", record.Hostname)
	assert.Equal(t, "sshd", record.ProcessName)
	assert.Equal(t, "Failed password for root", record.Message)
	require.NotNil(t, record.ProcessID)
	assert.Equal(t, int64(4321), *record.ProcessID)
	require.NotNil(t, record.Timestamp)
	assert.Equal(t, 2026, record.Timestamp.Year())

	// Structured data and nil proc-id forms parse too.
	record = parseLine("<165>1 2026-03-14T09:26:01Z ws-07 app - - [exampleSDID@32473 iut=\"3\"] service degraded", "/var/log/app.log", now)
	assert.Equal(t, "app", record.ProcessName)
	assert.Nil(t, record.ProcessID)
	assert.Equal(t, "service degraded", record.Message)
}

func TestAfterHours(t *testing.T) {
	t.Parallel()

	assert.True(t, afterHours(time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)))
	assert.True(t, afterHours(time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)))
	assert.False(t, afterHours(time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)))
}
