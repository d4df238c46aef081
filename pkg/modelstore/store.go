package modelstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File permissions for model artifacts.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

const metadataExtension = ".meta.json"

// Store saves and restores trained detector state under a single directory.
// One model per name: a codec-encoded state file plus a metadata sidecar.
type Store struct {
	Dir   string
	codec Codec
}

// New creates a store rooted at dir using the lz4 gob codec.
func New(dir string) *Store {
	return &Store{Dir: dir, codec: NewGobLZ4Codec()}
}

// StatePath returns the path of the encoded state file for a model name.
func (s *Store) StatePath(name string) string {
	return filepath.Join(s.Dir, name+s.codec.Extension())
}

// MetadataPath returns the path of the metadata sidecar for a model name.
func (s *Store) MetadataPath(name string) string {
	return filepath.Join(s.Dir, name+metadataExtension)
}

// Exists reports whether an encoded state file is present for the name.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.StatePath(name))

	return err == nil
}

// Save persists the trained state and its sealed metadata. The state file is
// written through a temp file and renamed so a crash never leaves a
// truncated model behind a valid sidecar.
func (s *Store) Save(name string, arity int, hyperparameters map[string]any, state any) error {
	err := os.MkdirAll(s.Dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}

	encodeErr := s.codec.Encode(tmp, state)

	closeErr := tmp.Close()
	if encodeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("encode model state: %w", encodeErr)
	}

	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close temp model file: %w", closeErr)
	}

	err = os.Rename(tmp.Name(), s.StatePath(name))
	if err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename model file: %w", err)
	}

	meta := NewMetadata(name, arity, hyperparameters)

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model metadata: %w", err)
	}

	err = os.WriteFile(s.MetadataPath(name), metaData, filePerm)
	if err != nil {
		return fmt.Errorf("write model metadata: %w", err)
	}

	return nil
}

// Load restores a persisted model into state (a pointer to the concrete
// trained-state struct) after validating its metadata against the
// expectation. A model without a metadata sidecar loads unvalidated; older
// installs wrote none.
func (s *Store) Load(expect Expectation, state any) error {
	path := s.StatePath(expect.Model)

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, expect.Model)
	}

	if err != nil {
		return fmt.Errorf("open model file: %w", err)
	}
	defer file.Close()

	metaData, metaErr := os.ReadFile(s.MetadataPath(expect.Model))
	if metaErr == nil {
		var meta Metadata

		err = json.Unmarshal(metaData, &meta)
		if err != nil {
			return fmt.Errorf("unmarshal model metadata: %w", err)
		}

		err = meta.Validate(expect)
		if err != nil {
			return fmt.Errorf("validate model %s: %w", expect.Model, err)
		}
	} else if !os.IsNotExist(metaErr) {
		return fmt.Errorf("read model metadata: %w", metaErr)
	}

	err = s.codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode model state: %w", err)
	}

	return nil
}

// Remove deletes a model's state and metadata. Missing files are not an
// error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.StatePath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove model file: %w", err)
	}

	err = os.Remove(s.MetadataPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove model metadata: %w", err)
	}

	return nil
}

// Clear removes every artifact in the store directory.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read model dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		err = os.Remove(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("remove model artifact: %w", err)
		}
	}

	return nil
}
