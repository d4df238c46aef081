// Package update applies signed offline update packages: ATT&CK catalog
// refreshes, staged model files, and keyword rule sets. Every applied update
// is appended to a local history file.
package update

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/mitre"
	"github.com/0Ankit0-0/quorum/pkg/security"
)

// Update types carried in a package payload.
const (
	TypeMitre = "mitre"
	TypeModel = "model"
	TypeRules = "rules"
)

const historyFile = "update_history.json"

// Service errors.
var (
	ErrUnknownType = errors.New("unknown update type")
	ErrBadFilename = errors.New("staged filename escapes target directory")
)

// Service verifies and applies update packages.
type Service struct {
	store      *store.Store
	updatesDir string
	modelsDir  string
	logger     *slog.Logger
}

// NewService wires an update service. updatesDir holds rule stages and the
// history file; modelsDir receives staged model files.
func NewService(st *store.Store, updatesDir, modelsDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:      st,
		updatesDir: updatesDir,
		modelsDir:  modelsDir,
		logger:     logger,
	}
}

// Verify checks a package's hash and signature and returns the decoded
// payload without applying it.
func (s *Service) Verify(path string, publicPEM []byte) (*security.UpdatePayload, error) {
	pkg, err := security.ReadUpdatePackage(path)
	if err != nil {
		return nil, err
	}

	err = pkg.Verify(publicPEM)
	if err != nil {
		return nil, err
	}

	return pkg.DecodePayload()
}

// Result summarizes one applied update.
type Result struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Items     int    `json:"items"`
	AppliedAt string `json:"applied_at"`
}

// Apply verifies a package and applies its payload.
func (s *Service) Apply(ctx context.Context, path string, publicPEM []byte) (*Result, error) {
	payload, err := s.Verify(path, publicPEM)
	if err != nil {
		return nil, err
	}

	var items int

	switch payload.Type {
	case TypeMitre:
		items, err = s.applyMitre(ctx, payload.Data)
	case TypeModel:
		items, err = s.stageFiles(payload.Data, s.modelsDir)
	case TypeRules:
		items, err = s.stageRules(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, payload.Type)
	}

	if err != nil {
		return nil, err
	}

	result := &Result{
		Type:      payload.Type,
		Version:   payload.Version,
		Items:     items,
		AppliedAt: time.Now().UTC().Format(time.RFC3339),
	}

	err = s.appendHistory(result)
	if err != nil {
		return nil, err
	}

	s.logger.Info("update applied",
		"type", result.Type, "version", result.Version, "items", result.Items)

	return result, nil
}

// applyMitre replaces the stored ATT&CK catalog with the bundled techniques.
func (s *Service) applyMitre(ctx context.Context, data []byte) (int, error) {
	techniques, err := mitre.ParseBundle(data)
	if err != nil {
		return 0, err
	}

	if len(techniques) == 0 {
		return 0, errors.New("attack bundle holds no techniques")
	}

	err = s.store.ReplaceTechniques(ctx, techniques)
	if err != nil {
		return 0, err
	}

	return len(techniques), nil
}

// stageFiles writes a filename-to-base64 map into dir. Filenames must be
// plain names; anything with a path component is rejected.
func (s *Service) stageFiles(data []byte, dir string) (int, error) {
	var files map[string]string

	err := json.Unmarshal(data, &files)
	if err != nil {
		return 0, fmt.Errorf("decode staged files: %w", err)
	}

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return 0, fmt.Errorf("create stage dir: %w", err)
	}

	for name, encoded := range files {
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			return 0, fmt.Errorf("%w: %q", ErrBadFilename, name)
		}

		content, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return 0, fmt.Errorf("decode staged file %s: %w", name, decodeErr)
		}

		writeErr := os.WriteFile(filepath.Join(dir, name), content, 0o600)
		if writeErr != nil {
			return 0, fmt.Errorf("write staged file %s: %w", name, writeErr)
		}
	}

	return len(files), nil
}

// stageRules writes the rule document under the updates directory, versioned
// by the payload.
func (s *Service) stageRules(payload *security.UpdatePayload) (int, error) {
	err := os.MkdirAll(s.updatesDir, 0o750)
	if err != nil {
		return 0, fmt.Errorf("create updates dir: %w", err)
	}

	name := "rules.json"
	if payload.Version != "" {
		name = fmt.Sprintf("rules_%s.json", payload.Version)
	}

	err = os.WriteFile(filepath.Join(s.updatesDir, name), payload.Data, 0o600)
	if err != nil {
		return 0, fmt.Errorf("write rules: %w", err)
	}

	return 1, nil
}

// History returns the applied updates, oldest first.
func (s *Service) History() ([]Result, error) {
	data, err := os.ReadFile(filepath.Join(s.updatesDir, historyFile))
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read update history: %w", err)
	}

	var history []Result

	err = json.Unmarshal(data, &history)
	if err != nil {
		return nil, fmt.Errorf("parse update history: %w", err)
	}

	return history, nil
}

func (s *Service) appendHistory(result *Result) error {
	history, err := s.History()
	if err != nil {
		return err
	}

	history = append(history, *result)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal update history: %w", err)
	}

	err = os.MkdirAll(s.updatesDir, 0o750)
	if err != nil {
		return fmt.Errorf("create updates dir: %w", err)
	}

	err = os.WriteFile(filepath.Join(s.updatesDir, historyFile), data, 0o600)
	if err != nil {
		return fmt.Errorf("write update history: %w", err)
	}

	return nil
}
