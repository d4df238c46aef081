// Package node manages the stable node identity used to attribute logs,
// anomalies, and sync packages to a machine.
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateID returns the node ID stored at path, generating and
// persisting a fresh UUID on first use.
func LoadOrCreateID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read node id: %w", err)
	}

	id := uuid.NewString()

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return "", fmt.Errorf("create node id dir: %w", err)
	}

	err = os.WriteFile(path, []byte(id+"\n"), 0o600)
	if err != nil {
		return "", fmt.Errorf("write node id: %w", err)
	}

	return id, nil
}
