package syncpkg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation reports a package that does not match the sync package
// schema.
var ErrSchemaViolation = errors.New("sync package schema violation")

// packageSchema is the JSON Schema every inbound .qsp file must satisfy
// before its contents are interpreted.
const packageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["package_id", "source_node", "target_node", "sync_method", "created_at", "anomalies", "logs_summary"],
  "properties": {
    "package_id":  {"type": "string", "minLength": 1},
    "source_node": {"type": "string", "minLength": 1},
    "target_node": {"type": "string", "minLength": 1},
    "sync_method": {"type": "string"},
    "created_at":  {"type": "string"},
    "anomalies": {
      "type": "array",
      "maxItems": 500,
      "items": {
        "type": "object",
        "required": ["id", "anomaly_score", "severity", "algorithm"],
        "properties": {
          "id":            {"type": "integer"},
          "anomaly_score": {"type": "number", "minimum": 0, "maximum": 1},
          "severity":      {"type": "string"},
          "algorithm":     {"type": "string"}
        }
      }
    },
    "logs_summary": {
      "type": "object",
      "required": ["node_id", "hostname"],
      "properties": {
        "node_id":  {"type": "string", "minLength": 1},
        "hostname": {"type": "string"}
      }
    },
    "metadata":  {"type": "object"},
    "signature": {"type": "string"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(packageSchema)

// ValidateSchema checks raw package JSON against the sync package schema.
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate sync package: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
}
