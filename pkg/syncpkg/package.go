// Package syncpkg defines the sync package (.qsp) format terminals use to
// carry anomalies to a hub, including signing over a canonical JSON form and
// schema validation of inbound files.
package syncpkg

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/0Ankit0-0/quorum/pkg/security"
)

// Extension is the sync package file extension.
const Extension = ".qsp"

// MaxAnomalies caps the anomalies carried by one package; exports take the
// highest-scoring rows first.
const MaxAnomalies = 500

// Sync methods.
const (
	MethodUSB    = "usb"
	MethodManual = "manual"
)

// Sentinel errors.
var (
	ErrUnsigned         = errors.New("package is not signed")
	ErrTooManyAnomalies = errors.New("package exceeds anomaly cap")
)

// Anomaly is one exported anomaly row, flattened with its source log fields.
type Anomaly struct {
	ID             int64   `json:"id"`
	AnomalyScore   float64 `json:"anomaly_score"`
	Severity       string  `json:"severity"`
	Algorithm      string  `json:"algorithm"`
	MitreTechnique string  `json:"mitre_technique_id,omitempty"`
	MitreTactic    string  `json:"mitre_tactic,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	Source         string  `json:"source,omitempty"`
	EventType      string  `json:"event_type,omitempty"`
	Message        string  `json:"message,omitempty"`
	Hostname       string  `json:"hostname,omitempty"`
	Username       string  `json:"username,omitempty"`
}

// NodeSummary describes the exporting node inside a package.
type NodeSummary struct {
	NodeID         string `json:"node_id"`
	Hostname       string `json:"hostname"`
	Role           string `json:"role"`
	TotalLogs      int64  `json:"total_logs"`
	TotalAnomalies int64  `json:"total_anomalies"`
	OSInfo         string `json:"os_info,omitempty"`
	Version        string `json:"quorum_version,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
}

// Package is the sync package envelope. The signature covers the canonical
// JSON of the package with the signature field cleared.
type Package struct {
	PackageID   string         `json:"package_id"`
	SourceNode  string         `json:"source_node"`
	TargetNode  string         `json:"target_node"`
	SyncMethod  string         `json:"sync_method"`
	CreatedAt   string         `json:"created_at"`
	Anomalies   []Anomaly      `json:"anomalies"`
	LogsSummary NodeSummary    `json:"logs_summary"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Signature   string         `json:"signature,omitempty"`
}

// New builds an unsigned package carrying the given anomalies. Anomalies
// beyond MaxAnomalies are an error; the caller selects which rows to export.
func New(sourceNode, targetNode string, anomalies []Anomaly, summary NodeSummary) (*Package, error) {
	if len(anomalies) > MaxAnomalies {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAnomalies, len(anomalies), MaxAnomalies)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	return &Package{
		PackageID:   uuid.NewString(),
		SourceNode:  sourceNode,
		TargetNode:  targetNode,
		SyncMethod:  MethodUSB,
		CreatedAt:   now,
		Anomalies:   anomalies,
		LogsSummary: summary,
		Metadata:    map[string]any{"exported_at": now},
	}, nil
}

// signingBytes returns the canonical JSON the signature covers.
func (p *Package) signingBytes() ([]byte, error) {
	unsigned := *p
	unsigned.Signature = ""

	return CanonicalJSON(&unsigned)
}

// Sign computes the package signature with the given PEM private key.
func (p *Package) Sign(privatePEM []byte) error {
	payload, err := p.signingBytes()
	if err != nil {
		return err
	}

	signature, err := security.Sign(privatePEM, payload)
	if err != nil {
		return err
	}

	p.Signature = base64.StdEncoding.EncodeToString(signature)

	return nil
}

// VerifySignature checks the package signature with the given PEM public
// key. An unsigned package fails with ErrUnsigned.
func (p *Package) VerifySignature(publicPEM []byte) error {
	if p.Signature == "" {
		return ErrUnsigned
	}

	signature, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	payload, err := p.signingBytes()
	if err != nil {
		return err
	}

	return security.Verify(publicPEM, payload, signature)
}

// WriteFile serializes the package as indented JSON.
func (p *Package) WriteFile(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync package: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write sync package: %w", err)
	}

	return nil
}

// ReadFile parses and schema-validates a package file.
func ReadFile(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sync package: %w", err)
	}

	err = ValidateSchema(data)
	if err != nil {
		return nil, err
	}

	var pkg Package

	err = json.Unmarshal(data, &pkg)
	if err != nil {
		return nil, fmt.Errorf("parse sync package: %w", err)
	}

	return &pkg, nil
}
