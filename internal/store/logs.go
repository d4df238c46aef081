package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// logRow is the sqlite rendition of a log record.
type logRow struct {
	ID          int64          `db:"id"`
	Timestamp   string         `db:"timestamp"`
	Source      string         `db:"source"`
	EventID     sql.NullString `db:"event_id"`
	EventType   sql.NullString `db:"event_type"`
	Severity    sql.NullString `db:"severity"`
	Message     sql.NullString `db:"message"`
	RawData     sql.NullString `db:"raw_data"`
	Hostname    sql.NullString `db:"hostname"`
	Username    sql.NullString `db:"username"`
	ProcessName sql.NullString `db:"process_name"`
	ProcessID   sql.NullInt64  `db:"process_id"`
	Metadata    sql.NullString `db:"metadata"`
}

// LogFilter bounds a log query. Zero-value fields are unconstrained.
type LogFilter struct {
	Start  *time.Time
	End    *time.Time
	Source string
	Limit  int
	Offset int
}

// InsertLogs writes records in one transaction and returns their assigned
// IDs in input order.
func (s *Store) InsertLogs(ctx context.Context, records []logdata.Record) ([]int64, error) {
	ids := make([]int64, 0, len(records))

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, `
			INSERT INTO logs (timestamp, source, event_id, event_type, severity,
				message, raw_data, hostname, username, process_name, process_id, metadata)
			VALUES (:timestamp, :source, :event_id, :event_type, :severity,
				:message, :raw_data, :hostname, :username, :process_name, :process_id, :metadata)`)
		if err != nil {
			return fmt.Errorf("prepare log insert: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			row, rowErr := toLogRow(&records[i])
			if rowErr != nil {
				return rowErr
			}

			result, execErr := stmt.ExecContext(ctx, row)
			if execErr != nil {
				return fmt.Errorf("insert log: %w", execErr)
			}

			id, idErr := result.LastInsertId()
			if idErr != nil {
				return fmt.Errorf("log insert id: %w", idErr)
			}

			ids = append(ids, id)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// QueryLogs returns records matching the filter, oldest first.
func (s *Store) QueryLogs(ctx context.Context, filter LogFilter) ([]logdata.Record, error) {
	query := `SELECT id, timestamp, source, event_id, event_type, severity, message,
		raw_data, hostname, username, process_name, process_id, metadata FROM logs`
	where, args := filter.clauses()
	query += where + " ORDER BY timestamp ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	var rows []logRow

	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}

	records := make([]logdata.Record, len(rows))
	for i := range rows {
		records[i] = fromLogRow(&rows[i])
	}

	return records, nil
}

// GetLog returns one record by ID.
func (s *Store) GetLog(ctx context.Context, id int64) (*logdata.Record, error) {
	var row logRow

	err := s.db.GetContext(ctx, &row, `SELECT id, timestamp, source, event_id, event_type,
		severity, message, raw_data, hostname, username, process_name, process_id, metadata
		FROM logs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: log %d", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}

	record := fromLogRow(&row)

	return &record, nil
}

// CountLogs returns the number of stored log records.
func (s *Store) CountLogs(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM logs")
	if err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}

	return count, nil
}

// LogStats summarizes the stored logs.
type LogStats struct {
	Total      int64
	BySeverity map[string]int64
	BySource   map[string]int64
	Earliest   string
	Latest     string
}

// Stats computes the stored-log summary.
func (s *Store) Stats(ctx context.Context) (*LogStats, error) {
	stats := &LogStats{
		BySeverity: map[string]int64{},
		BySource:   map[string]int64{},
	}

	err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM logs")
	if err != nil {
		return nil, fmt.Errorf("log stats: %w", err)
	}

	type bucket struct {
		Key   sql.NullString `db:"key"`
		Count int64          `db:"count"`
	}

	var severities []bucket

	err = s.db.SelectContext(ctx, &severities,
		"SELECT severity AS key, COUNT(*) AS count FROM logs GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("severity stats: %w", err)
	}

	for _, b := range severities {
		stats.BySeverity[b.Key.String] = b.Count
	}

	var sources []bucket

	err = s.db.SelectContext(ctx, &sources,
		"SELECT source AS key, COUNT(*) AS count FROM logs GROUP BY source ORDER BY count DESC")
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}

	for _, b := range sources {
		stats.BySource[b.Key.String] = b.Count
	}

	if stats.Total > 0 {
		var bounds struct {
			Earliest string `db:"earliest"`
			Latest   string `db:"latest"`
		}

		err = s.db.GetContext(ctx, &bounds,
			"SELECT MIN(timestamp) AS earliest, MAX(timestamp) AS latest FROM logs")
		if err != nil {
			return nil, fmt.Errorf("time bounds: %w", err)
		}

		stats.Earliest = bounds.Earliest
		stats.Latest = bounds.Latest
	}

	return stats, nil
}

func (f LogFilter) clauses() (string, []any) {
	where := ""
	var args []any

	and := func(cond string, arg any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}

		args = append(args, arg)
	}

	if f.Start != nil {
		and("timestamp >= ?", f.Start.UTC().Format(time.RFC3339))
	}

	if f.End != nil {
		and("timestamp <= ?", f.End.UTC().Format(time.RFC3339))
	}

	if f.Source != "" {
		and("source = ?", f.Source)
	}

	return where, args
}

func toLogRow(record *logdata.Record) (*logRow, error) {
	if record.Timestamp == nil {
		return nil, fmt.Errorf("record has no timestamp")
	}

	row := &logRow{
		Timestamp:   record.Timestamp.UTC().Format(time.RFC3339),
		Source:      record.Source,
		EventID:     nullString(record.EventID),
		EventType:   nullString(record.EventType),
		Severity:    nullString(record.Severity),
		Message:     nullString(record.Message),
		RawData:     nullString(record.Raw),
		Hostname:    nullString(record.Hostname),
		Username:    nullString(record.Username),
		ProcessName: nullString(record.ProcessName),
	}

	if record.ProcessID != nil {
		row.ProcessID = sql.NullInt64{Int64: *record.ProcessID, Valid: true}
	}

	if len(record.Metadata) > 0 {
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal log metadata: %w", err)
		}

		row.Metadata = sql.NullString{String: string(data), Valid: true}
	}

	return row, nil
}

func fromLogRow(row *logRow) logdata.Record {
	record := logdata.Record{
		ID:          row.ID,
		Source:      row.Source,
		EventID:     row.EventID.String,
		EventType:   row.EventType.String,
		Severity:    row.Severity.String,
		Message:     row.Message.String,
		Raw:         row.RawData.String,
		Hostname:    row.Hostname.String,
		Username:    row.Username.String,
		ProcessName: row.ProcessName.String,
	}

	if ts, err := time.Parse(time.RFC3339, row.Timestamp); err == nil {
		record.Timestamp = &ts
	}

	if row.ProcessID.Valid {
		pid := row.ProcessID.Int64
		record.ProcessID = &pid
	}

	if row.Metadata.Valid {
		_ = json.Unmarshal([]byte(row.Metadata.String), &record.Metadata)
	}

	return record
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
