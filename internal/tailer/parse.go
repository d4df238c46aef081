package tailer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// Line shapes recognized by the stream parser, tried in order. Anything that
// matches none of them is kept as a raw message.
var (
	// <165>1 2026-03-14T09:26:01.003Z ws-07 sshd 4321 ID47 - Failed password
	rfc5424Pattern = regexp.MustCompile(
		`^<\d{1,3}>\d{1,2}\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(?:-|(?:\[[^\]]*\])+)\s*(.*)$`)

	// Mar 14 09:26:01 ws-07 sshd[4321]: Failed password for root,
	// with or without a leading <PRI> field
	syslogPattern = regexp.MustCompile(
		`^(?:<\d{1,3}>)?([A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})\s+(\S+)\s+([\w./-]+?)(?:\[(\d+)\])?:\s*(.*)$`)

	// 2026-03-14T09:26:01.123Z ws-07 sshd[4321]: Failed password for root
	isoPattern = regexp.MustCompile(
		`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+(\S+)\s+([\w./-]+?)(?:\[(\d+)\])?:\s*(.*)$`)

	// [ERROR] disk quota exceeded / ERROR: disk quota exceeded
	levelPattern = regexp.MustCompile(
		`^\[?(CRITICAL|ERROR|WARNING|WARN|NOTICE|INFO|DEBUG)\]?[:\s]\s*(.*)$`)
)

// parseLine turns one tailed line into a record. The source is the tailed
// file; parsed process names refine it.
func parseLine(line, source string, now time.Time) logdata.Record {
	record := logdata.Record{
		Timestamp: &now,
		Source:    source,
		Message:   strings.TrimSpace(line),
		Raw:       line,
	}

	if m := rfc5424Pattern.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse(time.RFC3339Nano, m[1]); err == nil {
			record.Timestamp = &ts
		}

		fillParsed(&record, m[2], m[3], m[4], m[6])

		return record
	}

	if m := syslogPattern.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse(time.Stamp, m[1]); err == nil {
			// Syslog timestamps carry no year.
			ts = ts.AddDate(now.Year(), 0, 0)
			record.Timestamp = &ts
		}

		fillParsed(&record, m[2], m[3], m[4], m[5])

		return record
	}

	if m := isoPattern.FindStringSubmatch(line); m != nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, m[1]); err == nil {
				record.Timestamp = &ts

				break
			}
		}

		fillParsed(&record, m[2], m[3], m[4], m[5])

		return record
	}

	if m := levelPattern.FindStringSubmatch(line); m != nil {
		record.Severity = normalizeLevel(m[1])
		record.Message = strings.TrimSpace(m[2])
	}

	return record
}

func fillParsed(record *logdata.Record, hostname, process, pid, message string) {
	record.Hostname = hostname
	record.ProcessName = process
	record.Message = strings.TrimSpace(message)

	if pid != "" {
		if n, err := strconv.ParseInt(pid, 10, 64); err == nil {
			record.ProcessID = &n
		}
	}
}

func normalizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "CRITICAL":
		return logdata.SeverityCritical
	case "ERROR":
		return logdata.SeverityHigh
	case "WARNING", "WARN", "NOTICE":
		return logdata.SeverityMedium
	case "DEBUG":
		return "DEBUG"
	default:
		return logdata.SeverityInfo
	}
}

// afterHours reports whether t falls outside ordinary working hours.
func afterHours(t time.Time) bool {
	hour := t.Hour()

	return hour < 6 || hour >= 22
}
