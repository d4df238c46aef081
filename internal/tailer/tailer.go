// Package tailer follows a set of live log files, scores each new line with
// the lightweight stream heuristics, and emits every parsed line as an event.
// Scored events flow through a bounded queue so a slow consumer throttles
// reading instead of growing memory; only events at or above the persist
// threshold are stored as anomalies.
package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/keyword"
	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// Defaults applied when Options leave a knob unset.
const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultQueueSize        = 1024
	DefaultPersistThreshold = 0.55

	// StreamAlgorithm labels anomalies produced by the tailer.
	StreamAlgorithm = "stream"
)

// Event is one scored line from a tailed file.
type Event struct {
	Record   logdata.Record
	Score    float64
	Severity string
}

// Listener receives every scored event, alert or not.
type Listener func(Event)

// Options configure a tailer.
type Options struct {
	// PollInterval is the file polling cadence.
	PollInterval time.Duration

	// QueueSize bounds the scored-event queue.
	QueueSize int

	// PersistThreshold is the minimum stream score persisted as an anomaly.
	PersistThreshold float64

	// FromStart reads whole files instead of seeking to the end first.
	FromStart bool
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}

	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}

	if o.PersistThreshold <= 0 {
		o.PersistThreshold = DefaultPersistThreshold
	}
}

// fileIdentity distinguishes a rotated file from the one being followed.
type fileIdentity struct {
	dev uint64
	ino uint64
}

func identityOf(info os.FileInfo) (fileIdentity, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileIdentity{}, false
	}

	return fileIdentity{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}

// follower holds the read state of one tailed file.
type follower struct {
	path     string
	file     *os.File
	reader   *bufio.Reader
	identity fileIdentity
	offset   int64
}

func (f *follower) open(fromStart bool) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open tailed file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return fmt.Errorf("stat tailed file: %w", err)
	}

	offset := int64(0)
	if !fromStart {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()

			return fmt.Errorf("seek tailed file: %w", err)
		}
	}

	f.file = file
	f.reader = bufio.NewReader(file)
	f.offset = offset
	f.identity, _ = identityOf(info)

	return nil
}

func (f *follower) close() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}

// Tailer follows a dynamic set of log files from a single poll loop.
type Tailer struct {
	opts     Options
	store    *store.Store
	metrics  *observability.Metrics
	logger   *slog.Logger
	listener Listener

	mu      sync.Mutex
	adds    []string
	removes []string

	// Owned by the poll goroutine once Run starts.
	followers map[string]*follower
}

// New builds a tailer over the given paths. The store, metrics, and listener
// are each optional; a nil store disables persistence. More files can be
// added or removed at any time with AddFile and RemoveFile.
func New(opts Options, st *store.Store, metrics *observability.Metrics, logger *slog.Logger, listener Listener, paths ...string) *Tailer {
	opts.normalize()

	if logger == nil {
		logger = slog.Default()
	}

	t := &Tailer{
		opts:      opts,
		store:     st,
		metrics:   metrics,
		logger:    logger,
		listener:  listener,
		followers: map[string]*follower{},
	}

	for _, path := range paths {
		t.AddFile(path)
	}

	return t
}

// AddFile registers another file to follow. Files added while running are
// picked up within one poll interval.
func (t *Tailer) AddFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.adds = append(t.adds, path)
}

// RemoveFile stops following a file within one poll interval.
func (t *Tailer) RemoveFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removes = append(t.removes, path)
}

// Run follows the registered files until the context is cancelled. Returns
// nil on cancellation; any other error is a read or persistence failure.
// Files registered before Run must open successfully; files added later are
// retried every poll until they appear.
func (t *Tailer) Run(ctx context.Context) error {
	err := t.applyChanges(true)
	if err != nil {
		return err
	}
	defer t.closeAll()

	events := make(chan Event, t.opts.QueueSize)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(events)

		return t.poll(ctx, events)
	})

	group.Go(func() error {
		return t.consume(ctx, events)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (t *Tailer) poll(ctx context.Context, events chan<- Event) error {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err := t.applyChanges(false)
		if err != nil {
			return err
		}

		for _, f := range t.followers {
			err = t.checkRotation(ctx, f, events)
			if err != nil {
				return err
			}

			err = t.drainLines(ctx, f, events)
			if err != nil {
				return err
			}
		}
	}
}

// applyChanges opens pending files and closes removed ones. In strict mode an
// open failure aborts; otherwise the path is re-queued for the next poll.
func (t *Tailer) applyChanges(strict bool) error {
	t.mu.Lock()
	adds := t.adds
	removes := t.removes
	t.adds = nil
	t.removes = nil
	t.mu.Unlock()

	for _, path := range removes {
		if f, ok := t.followers[path]; ok {
			f.close()
			delete(t.followers, path)
			t.logger.Info("stopped following file", "path", path)
		}
	}

	for _, path := range adds {
		if _, ok := t.followers[path]; ok {
			continue
		}

		f := &follower{path: path}

		err := f.open(t.opts.FromStart)
		if err != nil {
			if strict {
				return err
			}

			t.logger.Warn("cannot open tailed file, retrying", "path", path, "error", err)
			t.AddFile(path)

			continue
		}

		t.followers[path] = f
	}

	return nil
}

// drainLines reads every complete line currently available in one file.
func (t *Tailer) drainLines(ctx context.Context, f *follower, events chan<- Event) error {
	for {
		line, err := f.reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// Partial line: rewind so the next poll rereads it whole.
			if len(line) > 0 {
				_, seekErr := f.file.Seek(f.offset, io.SeekStart)
				if seekErr != nil {
					return fmt.Errorf("rewind partial line: %w", seekErr)
				}

				f.reader.Reset(f.file)
			}

			return nil
		}

		if err != nil {
			return fmt.Errorf("read line: %w", err)
		}

		f.offset += int64(len(line))

		event := t.score(line[:len(line)-1], f.path)

		if t.metrics != nil {
			t.metrics.TailerLines.Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- event:
		}
	}
}

func (t *Tailer) score(line, source string) Event {
	now := time.Now()
	record := parseLine(line, source, now)
	score := keyword.StreamScore(&record, afterHours(now))

	return Event{
		Record:   record,
		Score:    score,
		Severity: logdata.SeverityBand(score),
	}
}

func (t *Tailer) consume(ctx context.Context, events <-chan Event) error {
	for event := range events {
		if t.listener != nil {
			t.listener(event)
		}

		// Only alerts cross the persist threshold.
		if event.Score < t.opts.PersistThreshold {
			continue
		}

		if t.metrics != nil {
			t.metrics.TailerAlerts.Inc()
		}

		if t.store == nil {
			continue
		}

		err := t.persist(ctx, event)
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *Tailer) persist(ctx context.Context, event Event) error {
	ids, err := t.store.InsertLogs(ctx, []logdata.Record{event.Record})
	if err != nil {
		return fmt.Errorf("persist stream log: %w", err)
	}

	err = t.store.InsertAnomalies(ctx, []store.Anomaly{{
		LogID:        ids[0],
		AnomalyScore: event.Score,
		Algorithm:    StreamAlgorithm,
		Explanation:  "stream alert: " + event.Record.Message,
		Severity:     event.Severity,
	}})
	if err != nil {
		return fmt.Errorf("persist stream anomaly: %w", err)
	}

	return nil
}

// checkRotation reopens a file that was rotated or truncated under us. The
// old handle is drained first so lines appended just before the rotation are
// not lost.
func (t *Tailer) checkRotation(ctx context.Context, f *follower, events chan<- Event) error {
	info, err := os.Stat(f.path)
	if err != nil {
		// The file may be mid-rotation; try again next poll.
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat tailed file: %w", err)
	}

	identity, ok := identityOf(info)
	rotated := ok && identity != f.identity
	truncated := info.Size() < f.offset

	if !rotated && !truncated {
		return nil
	}

	err = t.drainLines(ctx, f, events)
	if err != nil {
		return err
	}

	t.logger.Info("log file rotated, reopening", "path", f.path)
	f.close()

	return f.open(true)
}

func (t *Tailer) closeAll() {
	for _, f := range t.followers {
		f.close()
	}
}
