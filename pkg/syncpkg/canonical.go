package syncpkg

import (
	"encoding/json"
	"fmt"
)

// CanonicalJSON renders a value as compact JSON with all object keys sorted,
// so the same logical content always produces the same bytes. The value is
// round-tripped through generic maps because Go sorts map keys during
// marshal.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	var generic any

	err = json.Unmarshal(data, &generic)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical form: %w", err)
	}

	return canonical, nil
}
