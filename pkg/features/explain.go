package features

import (
	"fmt"
	"strings"
)

// Explain renders the human-readable narrative for an anomalous feature row.
// Phrases are emitted in fixed rule order and joined with "; "; when no rule
// fires the generic statistical wording is used.
func Explain(row []float64, score float64) string {
	var reasons []string

	if row[colAfterHours] == 1 {
		reasons = append(reasons, fmt.Sprintf("activity at unusual hour (%02d:00)", int(row[colHourOfDay])))
	}

	switch {
	case row[colKeywordRisk] >= 0.85:
		reasons = append(reasons, "high-risk keywords detected")
	case row[colKeywordRisk] >= 0.60:
		reasons = append(reasons, "suspicious keywords present")
	}

	if row[colFailureSignal] == 1 {
		reasons = append(reasons, "authentication/access failure")
	}

	if row[colPrivilege] == 1 {
		reasons = append(reasons, "privilege escalation activity")
	}

	if row[colSeverityLevel] >= 4 {
		reasons = append(reasons, "high severity event")
	}

	if row[colMessageLength] > 300 {
		reasons = append(reasons, "unusually long message")
	}

	if row[colSourceRisk] >= 0.60 {
		reasons = append(reasons, "high-risk source")
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("Statistical anomaly detected (score %.3f)", score)
	}

	return fmt.Sprintf("Anomaly (score %.3f): %s", score, strings.Join(reasons, "; "))
}

// Snapshot pairs feature names with a row's values for persistence with an
// anomaly.
func Snapshot(row []float64) map[string]float64 {
	snapshot := make(map[string]float64, len(Names))
	for i, name := range Names {
		snapshot[name] = row[i]
	}

	return snapshot
}
