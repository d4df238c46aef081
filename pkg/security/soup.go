package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Update package errors.
var (
	ErrPackageIncomplete    = errors.New("missing required package components")
	ErrHashMismatch         = errors.New("package integrity check failed")
	ErrUnsupportedAlgorithm = errors.New("unsupported package algorithm")
)

// Algorithms accepted in update package envelopes.
const (
	SignatureAlgorithm = "RSA-PSS"
	HashAlgorithm      = "SHA-256"
)

// UpdatePackage is the on-disk envelope of a signed offline update (.qup
// file): a JSON payload string, its SHA-256 hash, and an RSA-PSS signature
// over the payload bytes, base64-encoded. The algorithm fields name the
// schemes used; packages naming anything else are rejected.
type UpdatePackage struct {
	Payload       string         `json:"payload"`
	Signature     string         `json:"signature"`
	Hash          string         `json:"hash"`
	Algorithm     string         `json:"algorithm"`
	HashAlgorithm string         `json:"hash_algorithm"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// UpdatePayload is the decoded inner payload of an update package.
type UpdatePayload struct {
	Type     string          `json:"type"`
	Version  string          `json:"version"`
	Data     json.RawMessage `json:"data"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// ReadUpdatePackage parses an update package file without verifying it.
func ReadUpdatePackage(path string) (*UpdatePackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read update package: %w", err)
	}

	var pkg UpdatePackage

	err = json.Unmarshal(data, &pkg)
	if err != nil {
		return nil, fmt.Errorf("parse update package: %w", err)
	}

	return &pkg, nil
}

// Verify checks the package algorithms, hash, and signature against the
// public key.
func (p *UpdatePackage) Verify(publicPEM []byte) error {
	if p.Payload == "" || p.Signature == "" || p.Hash == "" ||
		p.Algorithm == "" || p.HashAlgorithm == "" {
		return ErrPackageIncomplete
	}

	if p.Algorithm != SignatureAlgorithm || p.HashAlgorithm != HashAlgorithm {
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedAlgorithm, p.Algorithm, p.HashAlgorithm)
	}

	payloadBytes := []byte(p.Payload)
	if HashHex(payloadBytes) != p.Hash {
		return ErrHashMismatch
	}

	signature, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	return Verify(publicPEM, payloadBytes, signature)
}

// DecodePayload parses the inner payload. Call Verify first; the payload of
// an unverified package must not be trusted.
func (p *UpdatePackage) DecodePayload() (*UpdatePayload, error) {
	var payload UpdatePayload

	err := json.Unmarshal([]byte(p.Payload), &payload)
	if err != nil {
		return nil, fmt.Errorf("decode update payload: %w", err)
	}

	return &payload, nil
}

// BuildUpdatePackage assembles and signs an update package around the given
// payload.
func BuildUpdatePackage(privatePEM []byte, payload UpdatePayload) (*UpdatePackage, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal update payload: %w", err)
	}

	signature, err := Sign(privatePEM, payloadJSON)
	if err != nil {
		return nil, err
	}

	return &UpdatePackage{
		Payload:       string(payloadJSON),
		Signature:     base64.StdEncoding.EncodeToString(signature),
		Hash:          HashHex(payloadJSON),
		Algorithm:     SignatureAlgorithm,
		HashAlgorithm: HashAlgorithm,
		Metadata:      payload.Metadata,
	}, nil
}

// WriteFile serializes the package as indented JSON.
func (p *UpdatePackage) WriteFile(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal update package: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write update package: %w", err)
	}

	return nil
}
