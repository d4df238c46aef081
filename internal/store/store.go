// Package store is the embedded storage layer: a single sqlite database
// holding logs, anomalies, analysis sessions, the ATT&CK catalog, and the
// hub aggregation tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The driver serializes access per connection; a single connection
	// avoids table-lock contention between writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		_, pragmaErr := db.Exec(pragma)
		if pragmaErr != nil {
			db.Close()

			return nil, fmt.Errorf("apply pragma: %w", pragmaErr)
		}
	}

	s := &Store{db: db, logger: logger}

	err = s.applySchema()
	if err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		s.logger.Warn("wal checkpoint failed", "error", err)
	}

	err = s.db.Close()
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *Store) applySchema() error {
	for _, ddl := range schemaStatements {
		_, err := s.db.Exec(ddl)
		if err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		source TEXT NOT NULL,
		event_id TEXT,
		event_type TEXT,
		severity TEXT,
		message TEXT,
		raw_data TEXT,
		hostname TEXT,
		username TEXT,
		process_name TEXT,
		process_id INTEGER,
		metadata TEXT,
		ingestion_time TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_event_type ON logs(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_severity ON logs(severity)`,

	`CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY,
		log_id INTEGER,
		anomaly_score REAL NOT NULL,
		algorithm TEXT NOT NULL,
		features TEXT,
		explanation TEXT,
		severity TEXT,
		detected_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		mitre_technique_id TEXT,
		mitre_tactic TEXT,
		session_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_log_id ON anomalies(log_id)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_session ON anomalies(session_id)`,

	`CREATE TABLE IF NOT EXISTS mitre_techniques (
		technique_id TEXT PRIMARY KEY,
		technique_name TEXT NOT NULL,
		tactic TEXT NOT NULL,
		description TEXT,
		platforms TEXT,
		data_sources TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS analysis_sessions (
		session_id TEXT PRIMARY KEY,
		start_time TEXT NOT NULL,
		end_time TEXT,
		status TEXT NOT NULL,
		logs_analyzed INTEGER,
		anomalies_detected INTEGER,
		parameters TEXT,
		metadata TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS node_registry (
		node_id TEXT PRIMARY KEY,
		hostname TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		ip_address TEXT,
		os_info TEXT,
		quorum_version TEXT,
		last_seen TEXT,
		last_sync TEXT,
		total_logs INTEGER DEFAULT 0,
		total_anomalies INTEGER DEFAULT 0,
		sync_method TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_node_registry_last_seen ON node_registry(last_seen)`,

	`CREATE TABLE IF NOT EXISTS hub_anomalies (
		original_id INTEGER,
		source_node TEXT NOT NULL,
		anomaly_score REAL,
		severity TEXT,
		algorithm TEXT,
		mitre_technique_id TEXT,
		mitre_tactic TEXT,
		log_timestamp TEXT,
		source TEXT,
		event_type TEXT,
		message TEXT,
		hostname TEXT,
		username TEXT,
		imported_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hub_anomalies_source_node ON hub_anomalies(source_node)`,
	`CREATE INDEX IF NOT EXISTS idx_hub_anomalies_mitre ON hub_anomalies(mitre_technique_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_hub_anomalies_original_source
		ON hub_anomalies(original_id, source_node)`,

	`CREATE TABLE IF NOT EXISTS node_sync_log (
		sync_id TEXT PRIMARY KEY,
		source_node TEXT,
		target_node TEXT,
		sync_method TEXT,
		anomalies_synced INTEGER,
		synced_at TEXT,
		package_path TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS device_log (
		id INTEGER PRIMARY KEY,
		device_id TEXT,
		device_class TEXT,
		name TEXT,
		vendor_id TEXT,
		product_id TEXT,
		serial TEXT,
		mount_point TEXT,
		connected_at TEXT,
		event TEXT,
		risk_level TEXT
	)`,
}
