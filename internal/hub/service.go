// Package hub implements the aggregation side of offline sync: exporting
// signed anomaly packages from collector nodes, importing them on the hub
// with deduplication, and correlating techniques across nodes.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/syncpkg"
)

// Identity describes the local node for registry entries and exported
// packages.
type Identity struct {
	NodeID   string
	Hostname string
	Role     string
	OSInfo   string
	Version  string
}

// Service runs hub operations against the local store.
type Service struct {
	store    *store.Store
	metrics  *observability.Metrics
	logger   *slog.Logger
	identity Identity
}

// NewService wires a hub service. Metrics and logger may be nil.
func NewService(st *store.Store, metrics *observability.Metrics, logger *slog.Logger, identity Identity) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    st,
		metrics:  metrics,
		logger:   logger,
		identity: identity,
	}
}

// RegisterSelf records or refreshes the local node in the registry.
func (s *Service) RegisterSelf(ctx context.Context) error {
	totalLogs, err := s.store.CountLogs(ctx)
	if err != nil {
		return err
	}

	totalAnomalies, err := s.store.CountAnomalies(ctx)
	if err != nil {
		return err
	}

	return s.store.UpsertLocalNode(ctx, store.Node{
		NodeID:         s.identity.NodeID,
		Hostname:       s.identity.Hostname,
		Role:           s.identity.Role,
		OSInfo:         s.identity.OSInfo,
		Version:        s.identity.Version,
		TotalLogs:      totalLogs,
		TotalAnomalies: totalAnomalies,
	})
}

// ExportPackage builds, signs, and writes a sync package carrying the
// node's top anomalies. Returns the written path.
func (s *Service) ExportPackage(ctx context.Context, targetNode, outputDir string, privatePEM []byte) (string, *syncpkg.Package, error) {
	anomalies, err := s.store.TopAnomaliesForExport(ctx, syncpkg.MaxAnomalies)
	if err != nil {
		return "", nil, err
	}

	totalLogs, err := s.store.CountLogs(ctx)
	if err != nil {
		return "", nil, err
	}

	totalAnomalies, err := s.store.CountAnomalies(ctx)
	if err != nil {
		return "", nil, err
	}

	summary := syncpkg.NodeSummary{
		NodeID:         s.identity.NodeID,
		Hostname:       s.identity.Hostname,
		Role:           s.identity.Role,
		TotalLogs:      totalLogs,
		TotalAnomalies: totalAnomalies,
		OSInfo:         s.identity.OSInfo,
		Version:        s.identity.Version,
	}

	pkg, err := syncpkg.New(s.identity.NodeID, targetNode, anomalies, summary)
	if err != nil {
		return "", nil, err
	}

	err = pkg.Sign(privatePEM)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(outputDir, exportFilename(s.identity.NodeID, time.Now()))

	err = pkg.WriteFile(path)
	if err != nil {
		return "", nil, err
	}

	err = s.store.InsertSyncLog(ctx, uuid.NewString(), s.identity.NodeID, targetNode,
		pkg.SyncMethod, int64(len(anomalies)), path)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("sync package exported",
		"path", path, "anomalies", len(anomalies), "target", targetNode)

	return path, pkg, nil
}

// ImportResult summarizes one package import.
type ImportResult struct {
	PackageID  string `json:"package_id"`
	SourceNode string `json:"source_node"`
	Total      int    `json:"total"`
	Merged     int64  `json:"merged"`
	Skipped    int64  `json:"skipped"`
}

// ImportPackage verifies and merges a sync package into the hub tables.
// Already-imported anomalies are skipped; the source node is registered in
// the registry as an offline peer.
func (s *Service) ImportPackage(ctx context.Context, path string, publicPEM []byte) (*ImportResult, error) {
	pkg, err := syncpkg.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = pkg.VerifySignature(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("verify package %s: %w", pkg.PackageID, err)
	}

	err = s.store.RegisterRemoteNode(ctx, pkg.LogsSummary, pkg.SyncMethod)
	if err != nil {
		return nil, err
	}

	merged, err := s.store.ImportHubAnomalies(ctx, pkg.SourceNode, pkg.Anomalies)
	if err != nil {
		return nil, err
	}

	err = s.store.InsertSyncLog(ctx, uuid.NewString(), pkg.SourceNode, s.identity.NodeID,
		pkg.SyncMethod, merged, path)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateNodeSyncStats(ctx, pkg.SourceNode, pkg.LogsSummary.TotalAnomalies)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SyncImports.Inc()
		s.metrics.SyncAnomalies.Add(float64(merged))
	}

	result := &ImportResult{
		PackageID:  pkg.PackageID,
		SourceNode: pkg.SourceNode,
		Total:      len(pkg.Anomalies),
		Merged:     merged,
		Skipped:    int64(len(pkg.Anomalies)) - merged,
	}

	s.logger.Info("sync package imported",
		"package_id", result.PackageID,
		"source_node", result.SourceNode,
		"merged", result.Merged,
		"skipped", result.Skipped)

	return result, nil
}

// Correlations returns the cross-node technique correlations.
func (s *Service) Correlations(ctx context.Context) ([]store.Correlation, error) {
	return s.store.Correlations(ctx)
}

// Dashboard is the hub overview.
type Dashboard struct {
	Nodes          []store.Node        `json:"nodes"`
	NodeThreats    []store.NodeThreat  `json:"node_threats"`
	Correlations   []store.Correlation `json:"correlations"`
	TotalAnomalies int64               `json:"total_anomalies"`
	BySeverity     map[string]int64    `json:"by_severity"`
	ByTactic       map[string]int64    `json:"by_tactic"`
}

// BuildDashboard aggregates the hub state into one view.
func (s *Service) BuildDashboard(ctx context.Context) (*Dashboard, error) {
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	threats, err := s.store.NodeThreats(ctx)
	if err != nil {
		return nil, err
	}

	correlations, err := s.store.Correlations(ctx)
	if err != nil {
		return nil, err
	}

	total, err := s.store.CountHubAnomalies(ctx)
	if err != nil {
		return nil, err
	}

	bySeverity, err := s.store.SeverityDistribution(ctx)
	if err != nil {
		return nil, err
	}

	byTactic, err := s.store.TacticDistribution(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Nodes:          nodes,
		NodeThreats:    threats,
		Correlations:   correlations,
		TotalAnomalies: total,
		BySeverity:     bySeverity,
		ByTactic:       byTactic,
	}, nil
}

func exportFilename(nodeID string, at time.Time) string {
	short := nodeID
	if len(short) > 8 {
		short = short[:8]
	}

	return fmt.Sprintf("sync_%s_%s%s", short, at.UTC().Format("20060102T150405"), syncpkg.Extension)
}
