// Package logdata defines the log record data model shared by the analysis
// pipeline, the real-time tailer, and the sync codec.
package logdata

import (
	"strings"
	"time"
)

// Severity levels recognized on ingress. Synonyms (ERROR, WARN, WARNING,
// DEBUG) are folded into the canonical set by SeverityLevel.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
	SeverityInfo     = "INFO"
)

// severityLevels maps severity labels (including synonyms) to an ordinal
// feature level. Unknown or empty severities default to the INFO level.
var severityLevels = map[string]float64{
	"CRITICAL": 5,
	"HIGH":     4,
	"ERROR":    4,
	"MEDIUM":   3,
	"WARN":     3,
	"WARNING":  3,
	"LOW":      2,
	"INFO":     1,
	"DEBUG":    0,
}

// SeverityLevel returns the ordinal level for a severity label, matched
// case-insensitively. CRITICAL=5 down to DEBUG=0; unknown labels map to
// 1 (INFO).
func SeverityLevel(severity string) float64 {
	level, ok := severityLevels[strings.ToUpper(severity)]
	if !ok {
		return 1
	}

	return level
}

// Record is a single OS event log entry as produced by the external parsers.
// Optional fields are zero-valued when absent; Timestamp is nil when the
// parser could not recover one. Records are immutable once constructed.
type Record struct {
	ID          int64             `db:"id" json:"id"`
	Timestamp   *time.Time        `db:"timestamp" json:"timestamp"`
	Source      string            `db:"source" json:"source"`
	EventID     string            `db:"event_id" json:"event_id"`
	EventType   string            `db:"event_type" json:"event_type"`
	Severity    string            `db:"severity" json:"severity"`
	Message     string            `db:"message" json:"message"`
	Hostname    string            `db:"hostname" json:"hostname"`
	Username    string            `db:"username" json:"username"`
	ProcessName string            `db:"process_name" json:"process_name"`
	ProcessID   *int64            `db:"process_id" json:"process_id"`
	Raw         string            `db:"raw_data" json:"raw"`
	Metadata    map[string]string `db:"-" json:"metadata,omitempty"`
}

// SeverityBand maps a calibrated anomaly score onto the named severity bucket.
// The thresholds are part of the scoring contract: CRITICAL >= 0.90,
// HIGH >= 0.75, MEDIUM >= 0.55, LOW otherwise.
func SeverityBand(score float64) string {
	switch {
	case score >= 0.90:
		return SeverityCritical
	case score >= 0.75:
		return SeverityHigh
	case score >= 0.55:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
