// Package features turns batches of log records into fixed-width numeric
// feature matrices for the anomaly detectors, and renders the human-readable
// explanation text attached to detected anomalies.
package features

import (
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// Arity is the fixed number of feature columns.
const Arity = 20

// Names lists the feature columns in matrix order.
var Names = []string{
	"hour_of_day", "day_of_week", "after_hours",
	"severity_level", "source_encoded", "source_risk",
	"event_type_encoded", "message_length", "word_count",
	"keyword_risk", "event_id_hash",
	"has_username", "has_hostname", "has_process", "process_id_norm",
	"has_failure_signal", "has_privilege_signal", "has_auth_signal",
	"has_ip_address", "has_port_number",
}

var (
	ipPattern   = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	portPattern = regexp.MustCompile(`\bport\s+\d+\b`)
)

// Column index constants for features consumed by the explainer.
const (
	colHourOfDay     = 0
	colAfterHours    = 2
	colSeverityLevel = 3
	colSourceRisk    = 5
	colMessageLength = 7
	colKeywordRisk   = 9
	colFailureSignal = 15
	colPrivilege     = 16
)

// Extractor builds feature matrices from record batches. Encoder tables are
// rebuilt from each batch (sorted unique sources and event types, 0-based),
// so indices are stable across re-runs on the same batch but not across
// batches.
type Extractor struct {
	sourceEncoder    map[string]int
	eventTypeEncoder map[string]int
}

// NewExtractor creates an extractor with empty encoder tables.
func NewExtractor() *Extractor {
	return &Extractor{
		sourceEncoder:    map[string]int{},
		eventTypeEncoder: map[string]int{},
	}
}

// ExtractBatch produces an NxArity matrix plus the feature name vector for a
// batch of records. The batch is the encoder scope: encoders are rebuilt from
// the batch before extraction. An empty batch yields a nil matrix.
func (e *Extractor) ExtractBatch(records []logdata.Record) ([][]float64, []string) {
	if len(records) == 0 {
		return nil, Names
	}

	e.buildEncoders(records)

	matrix := make([][]float64, len(records))
	for i := range records {
		matrix[i] = e.extractRow(&records[i])
	}

	return matrix, Names
}

// ExtractSingle routes a single record through the batch path for
// consistency with batch-local encoding.
func (e *Extractor) ExtractSingle(record logdata.Record) []float64 {
	matrix, _ := e.ExtractBatch([]logdata.Record{record})

	return matrix[0]
}

// buildEncoders rebuilds the source and event-type encoders from the batch.
func (e *Extractor) buildEncoders(records []logdata.Record) {
	sources := map[string]struct{}{}
	eventTypes := map[string]struct{}{}

	for i := range records {
		// Sources are indexed case-insensitively.
		sources[strings.ToLower(orUnknown(records[i].Source))] = struct{}{}
		eventTypes[orUnknown(records[i].EventType)] = struct{}{}
	}

	e.sourceEncoder = encodeSorted(sources)
	e.eventTypeEncoder = encodeSorted(eventTypes)
}

// encodeSorted assigns 0-based indices to the sorted keys of a set.
func encodeSorted(set map[string]struct{}) map[string]int {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	encoder := make(map[string]int, len(keys))
	for i, k := range keys {
		encoder[k] = i
	}

	return encoder
}

// extractRow computes the feature vector for one record. Pure per row:
// encoder tables are read-only during extraction.
func (e *Extractor) extractRow(record *logdata.Record) []float64 {
	row := make([]float64, Arity)

	hour, weekday := 12.0, 0.0
	if record.Timestamp != nil {
		hour = float64(record.Timestamp.Hour())
		// time.Weekday has Sunday=0; the feature uses Monday=0..Sunday=6.
		weekday = float64((int(record.Timestamp.Weekday()) + 6) % 7)
	}

	row[colHourOfDay] = hour
	row[1] = weekday

	if hour < 6 || hour > 22 {
		row[colAfterHours] = 1
	}

	row[colSeverityLevel] = logdata.SeverityLevel(record.Severity)

	sourceLower := strings.ToLower(orUnknown(record.Source))
	row[4] = float64(e.sourceEncoder[sourceLower])

	risk, ok := sourceRisk[sourceLower]
	if !ok {
		risk = defaultSourceRisk
	}

	row[colSourceRisk] = risk
	row[6] = float64(e.eventTypeEncoder[orUnknown(record.EventType)])

	message := record.Message
	messageLower := strings.ToLower(message)
	row[colMessageLength] = float64(utf8.RuneCountInString(message))
	row[8] = min(float64(len(strings.Fields(message))), 50)
	row[colKeywordRisk] = keywordRisk(messageLower)
	row[10] = eventIDHash(record.EventID)
	row[11] = boolFeature(record.Username != "")
	row[12] = boolFeature(record.Hostname != "")
	row[13] = boolFeature(record.ProcessName != "")

	if record.ProcessID != nil {
		row[14] = float64(*record.ProcessID % 1000)
	}

	row[colFailureSignal] = boolFeature(containsAny(messageLower, failureTokens))
	row[colPrivilege] = boolFeature(containsAny(messageLower, privilegeTokens))
	row[17] = boolFeature(containsAny(messageLower, authTokens))
	row[18] = boolFeature(ipPattern.MatchString(message))
	row[19] = boolFeature(portPattern.MatchString(messageLower))

	return row
}

// keywordRisk returns the maximum risk weight over all keyword substrings
// found in the lowercased message, or 0 when none match.
func keywordRisk(messageLower string) float64 {
	risk := 0.0

	for keyword, weight := range riskKeywords {
		if weight > risk && strings.Contains(messageLower, keyword) {
			risk = weight
		}
	}

	return risk
}

// eventIDHash hashes an event id into [0, 10000) with FNV-1a.
// FNV is stable across processes, which keeps warm-model re-runs
// byte-identical.
func eventIDHash(eventID string) float64 {
	if eventID == "" {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(eventID))

	return float64(h.Sum32() % 10000)
}

func containsAny(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}

	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}

	return s
}
