// Package keyword implements the deterministic rule engine that scores raw
// log records from severity baselines, message keywords, and source rules.
package keyword

import (
	"sort"
	"strings"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// suspiciousKeywords maps message substrings to score weights. A match
// raises the row score to max(current, weight).
var suspiciousKeywords = map[string]float64{
	"failed password":                  0.95,
	"authentication failed":            0.95,
	"invalid user":                     0.95,
	"sasl login authentication failed": 0.95,
	"suspicious command":               0.98,
	"failed mfa":                       0.97,
	"unauthorized":                     0.93,
	"rootkit":                          1.0,
	"malware":                          1.0,
	"failed":                           0.80,
	"error":                            0.75,
	"disconnect":                       0.72,
	"warning":                          0.70,
	"denied":                           0.78,
	"reject":                           0.76,
	"blocked":                          0.74,
	"sudo":                             0.60,
	"root":                             0.62,
	"admin":                            0.58,
	"privilege":                        0.65,
	"connect from unknown":             0.68,
	"accepted publickey":               0.35,
	"started session":                  0.25,
	"cmd":                              0.30,
	"container started":                0.28,
	"user login succeeded":             0.30,
}

// sourceRules maps source-name substrings to base weights. A match replaces
// the score with max(current, weight) * sourceDamping.
var sourceRules = map[string]float64{
	"kernel":     0.65,
	"auditd":     0.60,
	"sshd":       0.50,
	"sudo":       0.65,
	"cron":       0.20,
	"systemd":    0.20,
	"dockerd":    0.25,
	"nginx":      0.40,
	"postfix":    0.45,
	"app-worker": 0.50,
}

// sourceDamping is applied after a source rule lifts the score.
const sourceDamping = 0.9

// severityBaselines seeds each row score from its severity label.
var severityBaselines = map[string]float64{
	"CRITICAL": 0.85,
	"HIGH":     0.70,
	"ERROR":    0.70,
	"MEDIUM":   0.50,
	"WARNING":  0.45,
	"WARN":     0.45,
	"INFO":     0.25,
	"DEBUG":    0.10,
}

// defaultBaseline is used for unknown or empty severity labels.
const defaultBaseline = 0.25

// ScoreBatch computes a per-record score in [0,1] for a batch of raw
// records. Pure function: same batch, same scores.
func ScoreBatch(records []logdata.Record) []float64 {
	scores := make([]float64, len(records))
	for i := range records {
		scores[i] = ScoreRecord(&records[i])
	}

	return scores
}

// ScoreRecord scores one raw record: severity baseline, then keyword lifts,
// then damped source lifts, clamped to [0,1].
func ScoreRecord(record *logdata.Record) float64 {
	score := baseline(record.Severity)
	score = applyRules(score, strings.ToLower(record.Message), strings.ToLower(record.Source))

	return clamp01(score)
}

// applyRules lifts a base score by keyword matches then damped source
// matches. Source rules are applied in sorted key order so multi-match
// results are deterministic.
func applyRules(score float64, messageLower, sourceLower string) float64 {
	for kw, weight := range suspiciousKeywords {
		if weight > score && strings.Contains(messageLower, kw) {
			score = weight
		}
	}

	for _, src := range sortedSourceRules {
		if strings.Contains(sourceLower, src) {
			score = max(score, sourceRules[src]) * sourceDamping
		}
	}

	return score
}

// sortedSourceRules holds the source-rule keys in sorted order.
var sortedSourceRules = func() []string {
	keys := make([]string, 0, len(sourceRules))
	for k := range sourceRules {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// StreamScore is the lightweight variant used by the real-time tailer: a
// fixed baseline plus an after-hours bonus instead of the severity seed,
// with the same keyword and source rules.
func StreamScore(record *logdata.Record, afterHours bool) float64 {
	score := 0.20
	if afterHours {
		score += 0.10
	}

	score = applyRules(score, strings.ToLower(record.Message), strings.ToLower(record.Source))

	return clamp01(score)
}

func baseline(severity string) float64 {
	b, ok := severityBaselines[strings.ToUpper(severity)]
	if !ok {
		return defaultBaseline
	}

	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}

// Severity re-exports the calibrated severity banding so stream consumers
// can band lightweight scores without importing the ensemble.
func Severity(score float64) string {
	return logdata.SeverityBand(score)
}
