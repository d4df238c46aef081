package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/0Ankit0-0/quorum/pkg/syncpkg"
)

// Anomaly is one persisted detection result.
type Anomaly struct {
	ID             int64              `db:"id" json:"id"`
	LogID          int64              `db:"log_id" json:"log_id"`
	AnomalyScore   float64            `db:"anomaly_score" json:"anomaly_score"`
	Algorithm      string             `db:"algorithm" json:"algorithm"`
	Features       map[string]float64 `db:"-" json:"features,omitempty"`
	Explanation    string             `db:"explanation" json:"explanation"`
	Severity       string             `db:"severity" json:"severity"`
	DetectedAt     string             `db:"detected_at" json:"detected_at"`
	MitreTechnique string             `db:"mitre_technique_id" json:"mitre_technique_id,omitempty"`
	MitreTactic    string             `db:"mitre_tactic" json:"mitre_tactic,omitempty"`
	SessionID      string             `db:"session_id" json:"session_id,omitempty"`
}

type anomalyRow struct {
	ID             int64          `db:"id"`
	LogID          sql.NullInt64  `db:"log_id"`
	AnomalyScore   float64        `db:"anomaly_score"`
	Algorithm      string         `db:"algorithm"`
	Features       sql.NullString `db:"features"`
	Explanation    sql.NullString `db:"explanation"`
	Severity       sql.NullString `db:"severity"`
	DetectedAt     sql.NullString `db:"detected_at"`
	MitreTechnique sql.NullString `db:"mitre_technique_id"`
	MitreTactic    sql.NullString `db:"mitre_tactic"`
	SessionID      sql.NullString `db:"session_id"`
}

// InsertAnomalies persists detection results in one transaction.
func (s *Store) InsertAnomalies(ctx context.Context, anomalies []Anomaly) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO anomalies (log_id, anomaly_score, algorithm, features,
				explanation, severity, mitre_technique_id, mitre_tactic, session_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare anomaly insert: %w", err)
		}
		defer stmt.Close()

		for i := range anomalies {
			a := &anomalies[i]

			features := sql.NullString{}
			if len(a.Features) > 0 {
				data, marshalErr := json.Marshal(a.Features)
				if marshalErr != nil {
					return fmt.Errorf("marshal features: %w", marshalErr)
				}

				features = sql.NullString{String: string(data), Valid: true}
			}

			_, execErr := stmt.ExecContext(ctx,
				a.LogID, a.AnomalyScore, a.Algorithm, features,
				nullString(a.Explanation), nullString(a.Severity),
				nullString(a.MitreTechnique), nullString(a.MitreTactic),
				nullString(a.SessionID))
			if execErr != nil {
				return fmt.Errorf("insert anomaly: %w", execErr)
			}
		}

		return nil
	})
}

// AnomaliesBySession returns the anomalies of one analysis session, highest
// score first.
func (s *Store) AnomaliesBySession(ctx context.Context, sessionID string) ([]Anomaly, error) {
	var rows []anomalyRow

	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, log_id, anomaly_score, algorithm, features, explanation,
			severity, detected_at, mitre_technique_id, mitre_tactic, session_id
		FROM anomalies WHERE session_id = ?
		ORDER BY anomaly_score DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session anomalies: %w", err)
	}

	return fromAnomalyRows(rows), nil
}

// CountAnomalies returns the number of persisted anomalies.
func (s *Store) CountAnomalies(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM anomalies")
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}

	return count, nil
}

// TopAnomaliesForExport joins anomalies with their source logs and returns
// the highest-scoring rows in sync package form.
func (s *Store) TopAnomaliesForExport(ctx context.Context, limit int) ([]syncpkg.Anomaly, error) {
	if limit <= 0 || limit > syncpkg.MaxAnomalies {
		limit = syncpkg.MaxAnomalies
	}

	type exportRow struct {
		ID             int64          `db:"id"`
		AnomalyScore   float64        `db:"anomaly_score"`
		Severity       sql.NullString `db:"severity"`
		Algorithm      string         `db:"algorithm"`
		MitreTechnique sql.NullString `db:"mitre_technique_id"`
		MitreTactic    sql.NullString `db:"mitre_tactic"`
		Timestamp      sql.NullString `db:"timestamp"`
		Source         sql.NullString `db:"source"`
		EventType      sql.NullString `db:"event_type"`
		Message        sql.NullString `db:"message"`
		Hostname       sql.NullString `db:"hostname"`
		Username       sql.NullString `db:"username"`
	}

	var rows []exportRow

	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.anomaly_score, a.severity, a.algorithm,
			a.mitre_technique_id, a.mitre_tactic,
			l.timestamp, l.source, l.event_type, l.message, l.hostname, l.username
		FROM anomalies a
		JOIN logs l ON a.log_id = l.id
		ORDER BY a.anomaly_score DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query export anomalies: %w", err)
	}

	out := make([]syncpkg.Anomaly, len(rows))
	for i, r := range rows {
		out[i] = syncpkg.Anomaly{
			ID:             r.ID,
			AnomalyScore:   r.AnomalyScore,
			Severity:       r.Severity.String,
			Algorithm:      r.Algorithm,
			MitreTechnique: r.MitreTechnique.String,
			MitreTactic:    r.MitreTactic.String,
			Timestamp:      r.Timestamp.String,
			Source:         r.Source.String,
			EventType:      r.EventType.String,
			Message:        r.Message.String,
			Hostname:       r.Hostname.String,
			Username:       r.Username.String,
		}
	}

	return out, nil
}

func fromAnomalyRows(rows []anomalyRow) []Anomaly {
	out := make([]Anomaly, len(rows))

	for i, r := range rows {
		out[i] = Anomaly{
			ID:             r.ID,
			LogID:          r.LogID.Int64,
			AnomalyScore:   r.AnomalyScore,
			Algorithm:      r.Algorithm,
			Explanation:    r.Explanation.String,
			Severity:       r.Severity.String,
			DetectedAt:     r.DetectedAt.String,
			MitreTechnique: r.MitreTechnique.String,
			MitreTactic:    r.MitreTactic.String,
			SessionID:      r.SessionID.String,
		}

		if r.Features.Valid {
			_ = json.Unmarshal([]byte(r.Features.String), &out[i].Features)
		}
	}

	return out
}
