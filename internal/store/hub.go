package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/0Ankit0-0/quorum/pkg/syncpkg"
)

// Node roles and statuses in the registry.
const (
	RoleHub       = "hub"
	RoleCollector = "collector"

	NodeActive   = "active"
	NodeInactive = "inactive"
)

// Node is one row of the node registry.
type Node struct {
	NodeID         string `db:"node_id" json:"node_id"`
	Hostname       string `db:"hostname" json:"hostname"`
	Role           string `db:"role" json:"role"`
	Status         string `db:"status" json:"status"`
	IPAddress      string `db:"ip_address" json:"ip_address,omitempty"`
	OSInfo         string `db:"os_info" json:"os_info,omitempty"`
	Version        string `db:"quorum_version" json:"quorum_version,omitempty"`
	LastSeen       string `db:"last_seen" json:"last_seen,omitempty"`
	LastSync       string `db:"last_sync" json:"last_sync,omitempty"`
	TotalLogs      int64  `db:"total_logs" json:"total_logs"`
	TotalAnomalies int64  `db:"total_anomalies" json:"total_anomalies"`
	SyncMethod     string `db:"sync_method" json:"sync_method,omitempty"`
}

type nodeRow struct {
	NodeID         string         `db:"node_id"`
	Hostname       string         `db:"hostname"`
	Role           string         `db:"role"`
	Status         string         `db:"status"`
	IPAddress      sql.NullString `db:"ip_address"`
	OSInfo         sql.NullString `db:"os_info"`
	Version        sql.NullString `db:"quorum_version"`
	LastSeen       sql.NullString `db:"last_seen"`
	LastSync       sql.NullString `db:"last_sync"`
	TotalLogs      sql.NullInt64  `db:"total_logs"`
	TotalAnomalies sql.NullInt64  `db:"total_anomalies"`
	SyncMethod     sql.NullString `db:"sync_method"`
}

// UpsertLocalNode registers or refreshes this node's registry entry as active.
func (s *Store) UpsertLocalNode(ctx context.Context, node Node) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_registry (node_id, hostname, role, status, ip_address,
			os_info, quorum_version, last_seen, total_logs, total_anomalies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			hostname = excluded.hostname,
			role = excluded.role,
			status = excluded.status,
			ip_address = excluded.ip_address,
			os_info = excluded.os_info,
			quorum_version = excluded.quorum_version,
			last_seen = excluded.last_seen,
			total_logs = excluded.total_logs,
			total_anomalies = excluded.total_anomalies`,
		node.NodeID, node.Hostname, node.Role, NodeActive,
		nullString(node.IPAddress), nullString(node.OSInfo), nullString(node.Version),
		now, node.TotalLogs, node.TotalAnomalies)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	return nil
}

// RegisterRemoteNode records a node learned from an imported sync package.
// Remote nodes are never marked active; the hub only ever sees them offline.
func (s *Store) RegisterRemoteNode(ctx context.Context, summary syncpkg.NodeSummary, syncMethod string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_registry (node_id, hostname, role, status, ip_address,
			os_info, quorum_version, last_seen, total_logs, total_anomalies, sync_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			hostname = excluded.hostname,
			role = excluded.role,
			ip_address = excluded.ip_address,
			os_info = excluded.os_info,
			quorum_version = excluded.quorum_version,
			last_seen = excluded.last_seen,
			total_logs = excluded.total_logs,
			total_anomalies = excluded.total_anomalies,
			sync_method = excluded.sync_method`,
		summary.NodeID, summary.Hostname, summary.Role, NodeInactive,
		nullString(summary.IPAddress), nullString(summary.OSInfo), nullString(summary.Version),
		now, summary.TotalLogs, summary.TotalAnomalies, nullString(syncMethod))
	if err != nil {
		return fmt.Errorf("register remote node: %w", err)
	}

	return nil
}

// GetNode returns one registry entry.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	var row nodeRow

	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM node_registry WHERE node_id = ?", nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}

	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}

	node := fromNodeRow(&row)

	return &node, nil
}

// ListNodes returns all registered nodes, most recently seen first.
func (s *Store) ListNodes(ctx context.Context) ([]Node, error) {
	var rows []nodeRow

	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM node_registry ORDER BY last_seen DESC")
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	nodes := make([]Node, len(rows))
	for i := range rows {
		nodes[i] = fromNodeRow(&rows[i])
	}

	return nodes, nil
}

// ImportHubAnomalies merges anomalies from a sync package into the hub table.
// Rows already imported for the same (original_id, source_node) are skipped.
// Returns the number of newly merged rows.
func (s *Store) ImportHubAnomalies(ctx context.Context, sourceNode string, anomalies []syncpkg.Anomaly) (int64, error) {
	var merged int64

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT OR IGNORE INTO hub_anomalies (original_id, source_node,
				anomaly_score, severity, algorithm, mitre_technique_id, mitre_tactic,
				log_timestamp, source, event_type, message, hostname, username)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare hub insert: %w", err)
		}
		defer stmt.Close()

		for i := range anomalies {
			a := &anomalies[i]

			result, execErr := stmt.ExecContext(ctx,
				a.ID, sourceNode, a.AnomalyScore,
				nullString(a.Severity), nullString(a.Algorithm),
				nullString(a.MitreTechnique), nullString(a.MitreTactic),
				nullString(a.Timestamp), nullString(a.Source), nullString(a.EventType),
				nullString(a.Message), nullString(a.Hostname), nullString(a.Username))
			if execErr != nil {
				return fmt.Errorf("insert hub anomaly: %w", execErr)
			}

			affected, affErr := result.RowsAffected()
			if affErr != nil {
				return fmt.Errorf("hub insert rows: %w", affErr)
			}

			merged += affected
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return merged, nil
}

// InsertSyncLog records one completed sync import or export.
func (s *Store) InsertSyncLog(ctx context.Context, syncID, sourceNode, targetNode, method string, anomaliesSynced int64, packagePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_sync_log (sync_id, source_node, target_node, sync_method,
			anomalies_synced, synced_at, package_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		syncID, sourceNode, targetNode, method, anomaliesSynced,
		time.Now().UTC().Format(time.RFC3339), nullString(packagePath))
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}

	return nil
}

// UpdateNodeSyncStats bumps a node's sync timestamp and anomaly total after
// an import.
func (s *Store) UpdateNodeSyncStats(ctx context.Context, nodeID string, totalAnomalies int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE node_registry SET last_sync = ?, total_anomalies = ?
		WHERE node_id = ?`,
		time.Now().UTC().Format(time.RFC3339), totalAnomalies, nodeID)
	if err != nil {
		return fmt.Errorf("update node sync stats: %w", err)
	}

	return nil
}

// Correlation is a technique observed on two or more distinct nodes.
type Correlation struct {
	TechniqueID   string   `json:"technique_id"`
	Tactic        string   `json:"tactic"`
	NodeCount     int64    `json:"node_count"`
	Occurrences   int64    `json:"occurrences"`
	MaxScore      float64  `json:"max_score"`
	AvgScore      float64  `json:"avg_score"`
	FirstSeen     string   `json:"first_seen,omitempty"`
	LastSeen      string   `json:"last_seen,omitempty"`
	Nodes         []string `json:"nodes"`
	ThreatLevel   string   `json:"threat_level"`
	IsCoordinated bool     `json:"is_coordinated"`
}

// Correlations finds techniques reported by at least two distinct nodes.
// Three or more nodes escalates the threat level to CRITICAL.
func (s *Store) Correlations(ctx context.Context) ([]Correlation, error) {
	type correlationRow struct {
		TechniqueID string         `db:"mitre_technique_id"`
		Tactic      sql.NullString `db:"mitre_tactic"`
		NodeCount   int64          `db:"node_count"`
		Occurrences int64          `db:"occurrences"`
		MaxScore    float64        `db:"max_score"`
		AvgScore    float64        `db:"avg_score"`
		FirstSeen   sql.NullString `db:"first_seen"`
		LastSeen    sql.NullString `db:"last_seen"`
		Nodes       string         `db:"nodes"`
	}

	var rows []correlationRow

	err := s.db.SelectContext(ctx, &rows, `
		SELECT mitre_technique_id, mitre_tactic,
			COUNT(DISTINCT source_node) AS node_count,
			COUNT(*) AS occurrences,
			MAX(anomaly_score) AS max_score,
			AVG(anomaly_score) AS avg_score,
			MIN(log_timestamp) AS first_seen,
			MAX(log_timestamp) AS last_seen,
			GROUP_CONCAT(DISTINCT source_node) AS nodes
		FROM hub_anomalies
		WHERE mitre_technique_id IS NOT NULL AND mitre_technique_id != ''
		GROUP BY mitre_technique_id, mitre_tactic
		HAVING node_count >= 2
		ORDER BY node_count DESC, max_score DESC`)
	if err != nil {
		return nil, fmt.Errorf("query correlations: %w", err)
	}

	out := make([]Correlation, len(rows))
	for i, r := range rows {
		c := Correlation{
			TechniqueID:   r.TechniqueID,
			Tactic:        r.Tactic.String,
			NodeCount:     r.NodeCount,
			Occurrences:   r.Occurrences,
			MaxScore:      r.MaxScore,
			AvgScore:      r.AvgScore,
			FirstSeen:     r.FirstSeen.String,
			LastSeen:      r.LastSeen.String,
			Nodes:         splitConcat(r.Nodes),
			ThreatLevel:   "HIGH",
			IsCoordinated: true,
		}
		if r.NodeCount >= 3 {
			c.ThreatLevel = "CRITICAL"
		}

		out[i] = c
	}

	return out, nil
}

// NodeThreat summarizes the anomaly picture one node has reported.
type NodeThreat struct {
	NodeID        string  `db:"source_node" json:"node_id"`
	Hostname      string  `json:"hostname,omitempty"`
	TotalImported int64   `db:"total" json:"total_imported"`
	CriticalCount int64   `db:"critical_count" json:"critical_count"`
	HighCount     int64   `db:"high_count" json:"high_count"`
	AvgScore      float64 `db:"avg_score" json:"avg_score"`
	LastSync      string  `json:"last_sync,omitempty"`
}

// NodeThreats aggregates imported anomalies per source node.
func (s *Store) NodeThreats(ctx context.Context) ([]NodeThreat, error) {
	var threats []NodeThreat

	err := s.db.SelectContext(ctx, &threats, `
		SELECT source_node, COUNT(*) AS total,
			SUM(CASE WHEN severity = 'CRITICAL' THEN 1 ELSE 0 END) AS critical_count,
			SUM(CASE WHEN severity = 'HIGH' THEN 1 ELSE 0 END) AS high_count,
			AVG(anomaly_score) AS avg_score
		FROM hub_anomalies
		GROUP BY source_node
		ORDER BY critical_count DESC, total DESC`)
	if err != nil {
		return nil, fmt.Errorf("query node threats: %w", err)
	}

	for i := range threats {
		node, getErr := s.GetNode(ctx, threats[i].NodeID)
		if getErr != nil {
			continue
		}

		threats[i].Hostname = node.Hostname
		threats[i].LastSync = node.LastSync
	}

	return threats, nil
}

// SeverityDistribution counts imported hub anomalies per severity.
func (s *Store) SeverityDistribution(ctx context.Context) (map[string]int64, error) {
	return s.hubDistribution(ctx, "severity")
}

// TacticDistribution counts imported hub anomalies per ATT&CK tactic.
func (s *Store) TacticDistribution(ctx context.Context) (map[string]int64, error) {
	return s.hubDistribution(ctx, "mitre_tactic")
}

func (s *Store) hubDistribution(ctx context.Context, column string) (map[string]int64, error) {
	type bucket struct {
		Key   sql.NullString `db:"key"`
		Count int64          `db:"count"`
	}

	var rows []bucket

	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM hub_anomalies
		WHERE %s IS NOT NULL AND %s != '' GROUP BY %s`, column, column, column, column)

	err := s.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, fmt.Errorf("hub distribution: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, b := range rows {
		out[b.Key.String] = b.Count
	}

	return out, nil
}

// CountHubAnomalies returns the number of imported hub anomalies.
func (s *Store) CountHubAnomalies(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM hub_anomalies")
	if err != nil {
		return 0, fmt.Errorf("count hub anomalies: %w", err)
	}

	return count, nil
}

func fromNodeRow(row *nodeRow) Node {
	return Node{
		NodeID:         row.NodeID,
		Hostname:       row.Hostname,
		Role:           row.Role,
		Status:         row.Status,
		IPAddress:      row.IPAddress.String,
		OSInfo:         row.OSInfo.String,
		Version:        row.Version.String,
		LastSeen:       row.LastSeen.String,
		LastSync:       row.LastSync.String,
		TotalLogs:      row.TotalLogs.Int64,
		TotalAnomalies: row.TotalAnomalies.Int64,
		SyncMethod:     row.SyncMethod.String,
	}
}

func splitConcat(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, ",")
}
