package mitre

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stixObject is the subset of a STIX 2.x object the bundle parser reads.
type stixObject struct {
	Type               string `json:"type"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	ExternalReferences []struct {
		SourceName string `json:"source_name"`
		ExternalID string `json:"external_id"`
	} `json:"external_references"`
	KillChainPhases []struct {
		PhaseName string `json:"phase_name"`
	} `json:"kill_chain_phases"`
	Platforms   []string `json:"x_mitre_platforms"`
	DataSources []string `json:"x_mitre_data_sources"`
}

// ParseBundle extracts attack-pattern techniques from an enterprise ATT&CK
// STIX bundle. Objects without a mitre-attack external ID are skipped.
func ParseBundle(data []byte) ([]Technique, error) {
	var bundle struct {
		Objects []stixObject `json:"objects"`
	}

	err := json.Unmarshal(data, &bundle)
	if err != nil {
		return nil, fmt.Errorf("parse attack bundle: %w", err)
	}

	var techniques []Technique

	for _, obj := range bundle.Objects {
		if obj.Type != "attack-pattern" {
			continue
		}

		id := ""

		for _, ref := range obj.ExternalReferences {
			if ref.SourceName == "mitre-attack" {
				id = ref.ExternalID

				break
			}
		}

		if id == "" {
			continue
		}

		tactic := "unknown"
		if len(obj.KillChainPhases) > 0 {
			tactic = strings.ReplaceAll(obj.KillChainPhases[0].PhaseName, "-", "_")
		}

		techniques = append(techniques, Technique{
			TechniqueID: id,
			Name:        obj.Name,
			Tactic:      tactic,
			Description: obj.Description,
			Platforms:   obj.Platforms,
			DataSources: obj.DataSources,
		})
	}

	return techniques, nil
}
