package modelstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MetadataVersion is the current model metadata format version.
const MetadataVersion = "1.0"

// Sentinel errors for model validation.
var (
	ErrModelNotFound    = errors.New("model not found")
	ErrChecksumMismatch = errors.New("model metadata checksum mismatch")
	ErrModelMismatch    = errors.New("model does not match expectation")
)

// Metadata describes a persisted model. The checksum covers every other
// field, so any tampering or partial write invalidates the model and forces
// a retrain.
type Metadata struct {
	Model           string         `json:"model_name"`
	MetadataVersion string         `json:"metadata_version"`
	Arity           int            `json:"n_features"`
	Hyperparameters map[string]any `json:"params"`
	CreatedAt       string         `json:"created_at"`
	Checksum        string         `json:"checksum"`
}

// Expectation is what a caller requires of a persisted model before its
// state may be restored.
type Expectation struct {
	Model           string
	Arity           int
	Hyperparameters map[string]any
}

// NewMetadata builds sealed metadata for a model about to be saved.
func NewMetadata(model string, arity int, hyperparameters map[string]any) Metadata {
	meta := Metadata{
		Model:           model,
		MetadataVersion: MetadataVersion,
		Arity:           arity,
		Hyperparameters: hyperparameters,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	meta.Checksum = meta.checksum()

	return meta
}

// checksum hashes the canonical JSON of the metadata with the checksum field
// cleared. Canonical form comes from Go's map-key sorting during marshal.
func (m Metadata) checksum() string {
	m.Checksum = ""

	payload := map[string]any{
		"model_name":       m.Model,
		"metadata_version": m.MetadataVersion,
		"n_features":       m.Arity,
		"params":           m.Hyperparameters,
		"created_at":       m.CreatedAt,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Metadata fields are plain JSON types; marshal cannot fail.
		panic(fmt.Sprintf("marshal model metadata: %v", err))
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// Validate verifies the checksum and matches the metadata against the
// expectation. A mismatch means the model on disk was trained under
// different conditions and must not be restored.
func (m Metadata) Validate(expect Expectation) error {
	if m.Checksum == "" || m.Checksum != m.checksum() {
		return ErrChecksumMismatch
	}

	if m.Model != expect.Model {
		return fmt.Errorf("%w: model %q, want %q", ErrModelMismatch, m.Model, expect.Model)
	}

	if m.Arity != expect.Arity {
		return fmt.Errorf("%w: arity %d, want %d", ErrModelMismatch, m.Arity, expect.Arity)
	}

	if !paramsEqual(m.Hyperparameters, expect.Hyperparameters) {
		return fmt.Errorf("%w: hyperparameters differ", ErrModelMismatch)
	}

	return nil
}

// paramsEqual compares hyperparameter maps through a JSON round-trip so that
// int and float64 renditions of the same number compare equal.
func paramsEqual(a, b map[string]any) bool {
	return bytes.Equal(canonicalParams(a), canonicalParams(b))
}

func canonicalParams(params map[string]any) []byte {
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}

	var normalized any
	if json.Unmarshal(data, &normalized) != nil {
		return nil
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil
	}

	return out
}
