// Package mitre maps log records to ATT&CK techniques via Windows event IDs
// and message keywords, and parses the enterprise ATT&CK STIX bundle into
// technique rows.
package mitre

import (
	"strings"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// Technique is one ATT&CK technique as stored in the catalog.
type Technique struct {
	TechniqueID string   `json:"technique_id" db:"technique_id"`
	Name        string   `json:"technique_name" db:"technique_name"`
	Tactic      string   `json:"tactic" db:"tactic"`
	Description string   `json:"description,omitempty" db:"description"`
	Platforms   []string `json:"platforms,omitempty" db:"-"`
	DataSources []string `json:"data_sources,omitempty" db:"-"`
}

// Catalog resolves technique IDs to their details. Absence is not an error;
// mapping still yields the ID.
type Catalog interface {
	Lookup(techniqueID string) (*Technique, bool)
}

// Mapper maps records to techniques, enriching matches through an optional
// catalog.
type Mapper struct {
	catalog Catalog
}

// NewMapper creates a mapper. The catalog may be nil; matches then carry
// only technique IDs.
func NewMapper(catalog Catalog) *Mapper {
	return &Mapper{catalog: catalog}
}

// Map returns the techniques matched by a record: the event-ID mapping
// first, then keyword matches over message and event type, deduplicated by
// technique ID with the first match kept.
func (m *Mapper) Map(record *logdata.Record) []Technique {
	var ids []string

	if record.EventID != "" {
		if id, ok := eventTechniqueMap[record.EventID]; ok {
			ids = append(ids, id)
		}
	}

	combined := strings.ToLower(record.Message) + " " + strings.ToLower(record.EventType)
	for _, rule := range keywordRules {
		if strings.Contains(combined, rule.keyword) {
			ids = append(ids, rule.technique)
		}
	}

	seen := make(map[string]struct{}, len(ids))
	matches := make([]Technique, 0, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		matches = append(matches, m.resolve(id))
	}

	return matches
}

func (m *Mapper) resolve(id string) Technique {
	if m.catalog != nil {
		if technique, ok := m.catalog.Lookup(id); ok {
			return *technique
		}
	}

	return Technique{TechniqueID: id}
}

// MapEventID returns the technique ID for a Windows event ID, if any.
func MapEventID(eventID string) (string, bool) {
	id, ok := eventTechniqueMap[eventID]

	return id, ok
}
