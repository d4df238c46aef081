package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Session is one analysis run.
type Session struct {
	SessionID         string         `db:"session_id" json:"session_id"`
	StartTime         string         `db:"start_time" json:"start_time"`
	EndTime           string         `db:"end_time" json:"end_time,omitempty"`
	Status            string         `db:"status" json:"status"`
	LogsAnalyzed      int64          `db:"logs_analyzed" json:"logs_analyzed"`
	AnomaliesDetected int64          `db:"anomalies_detected" json:"anomalies_detected"`
	Parameters        map[string]any `db:"-" json:"parameters,omitempty"`
	Metadata          map[string]any `db:"-" json:"metadata,omitempty"`
}

type sessionRow struct {
	SessionID         string         `db:"session_id"`
	StartTime         string         `db:"start_time"`
	EndTime           sql.NullString `db:"end_time"`
	Status            string         `db:"status"`
	LogsAnalyzed      sql.NullInt64  `db:"logs_analyzed"`
	AnomaliesDetected sql.NullInt64  `db:"anomalies_detected"`
	Parameters        sql.NullString `db:"parameters"`
	Metadata          sql.NullString `db:"metadata"`
}

// CreateSession records a new running session.
func (s *Store) CreateSession(ctx context.Context, sessionID string, parameters map[string]any) error {
	params, err := marshalNullable(parameters)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_sessions (session_id, start_time, status, parameters)
		VALUES (?, ?, ?, ?)`,
		sessionID, time.Now().UTC().Format(time.RFC3339), SessionRunning, params)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// FinishSession marks a session completed with its counters.
func (s *Store) FinishSession(ctx context.Context, sessionID string, logsAnalyzed, anomalies int64) error {
	return s.endSession(ctx, sessionID, SessionCompleted, logsAnalyzed, anomalies, nil)
}

// FailSession marks a session failed and records the error in metadata.
func (s *Store) FailSession(ctx context.Context, sessionID string, cause error) error {
	metadata := map[string]any{"error": cause.Error()}

	return s.endSession(ctx, sessionID, SessionFailed, 0, 0, metadata)
}

func (s *Store) endSession(
	ctx context.Context,
	sessionID, status string,
	logsAnalyzed, anomalies int64,
	metadata map[string]any,
) error {
	meta, err := marshalNullable(metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET end_time = ?, status = ?, logs_analyzed = ?, anomalies_detected = ?,
			metadata = COALESCE(?, metadata)
		WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, logsAnalyzed, anomalies, meta, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	return nil
}

// GetSession returns one session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var row sessionRow

	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM analysis_sessions WHERE session_id = ?", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	session := fromSessionRow(&row)

	return &session, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []sessionRow

	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM analysis_sessions ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, len(rows))
	for i := range rows {
		sessions[i] = fromSessionRow(&rows[i])
	}

	return sessions, nil
}

func fromSessionRow(row *sessionRow) Session {
	session := Session{
		SessionID:         row.SessionID,
		StartTime:         row.StartTime,
		EndTime:           row.EndTime.String,
		Status:            row.Status,
		LogsAnalyzed:      row.LogsAnalyzed.Int64,
		AnomaliesDetected: row.AnomaliesDetected.Int64,
	}

	if row.Parameters.Valid {
		_ = json.Unmarshal([]byte(row.Parameters.String), &session.Parameters)
	}

	if row.Metadata.Valid {
		_ = json.Unmarshal([]byte(row.Metadata.String), &session.Metadata)
	}

	return session
}

func marshalNullable(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json column: %w", err)
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}
