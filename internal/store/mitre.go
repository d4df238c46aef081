package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/0Ankit0-0/quorum/pkg/mitre"
)

type techniqueRow struct {
	TechniqueID string         `db:"technique_id"`
	Name        string         `db:"technique_name"`
	Tactic      string         `db:"tactic"`
	Description sql.NullString `db:"description"`
	Platforms   sql.NullString `db:"platforms"`
	DataSources sql.NullString `db:"data_sources"`
}

// ReplaceTechniques swaps the stored ATT&CK catalog for the given set in one
// transaction.
func (s *Store) ReplaceTechniques(ctx context.Context, techniques []mitre.Technique) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM mitre_techniques")
		if err != nil {
			return fmt.Errorf("clear techniques: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO mitre_techniques (technique_id, technique_name, tactic,
				description, platforms, data_sources)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare technique insert: %w", err)
		}
		defer stmt.Close()

		for i := range techniques {
			t := &techniques[i]

			platforms, err := marshalStringList(t.Platforms)
			if err != nil {
				return err
			}

			dataSources, err := marshalStringList(t.DataSources)
			if err != nil {
				return err
			}

			_, err = stmt.ExecContext(ctx, t.TechniqueID, t.Name, t.Tactic,
				nullString(t.Description), platforms, dataSources)
			if err != nil {
				return fmt.Errorf("insert technique: %w", err)
			}
		}

		return nil
	})
}

// Lookup resolves one technique by ID. It satisfies mitre.Catalog.
func (s *Store) Lookup(techniqueID string) (*mitre.Technique, bool) {
	var row techniqueRow

	err := s.db.Get(&row,
		"SELECT * FROM mitre_techniques WHERE technique_id = ?", techniqueID)
	if err != nil {
		return nil, false
	}

	technique := fromTechniqueRow(&row)

	return &technique, true
}

// GetTechnique resolves one technique by ID with context.
func (s *Store) GetTechnique(ctx context.Context, techniqueID string) (*mitre.Technique, error) {
	var row techniqueRow

	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM mitre_techniques WHERE technique_id = ?", techniqueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: technique %s", ErrNotFound, techniqueID)
	}

	if err != nil {
		return nil, fmt.Errorf("get technique: %w", err)
	}

	technique := fromTechniqueRow(&row)

	return &technique, nil
}

// TechniquesByTactic returns the techniques of one tactic, ordered by ID.
func (s *Store) TechniquesByTactic(ctx context.Context, tactic string) ([]mitre.Technique, error) {
	var rows []techniqueRow

	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM mitre_techniques WHERE tactic = ? ORDER BY technique_id", tactic)
	if err != nil {
		return nil, fmt.Errorf("query techniques by tactic: %w", err)
	}

	out := make([]mitre.Technique, len(rows))
	for i := range rows {
		out[i] = fromTechniqueRow(&rows[i])
	}

	return out, nil
}

// Tactics returns the distinct tactics present in the catalog.
func (s *Store) Tactics(ctx context.Context) ([]string, error) {
	var tactics []string

	err := s.db.SelectContext(ctx, &tactics,
		"SELECT DISTINCT tactic FROM mitre_techniques ORDER BY tactic")
	if err != nil {
		return nil, fmt.Errorf("query tactics: %w", err)
	}

	return tactics, nil
}

// CountTechniques returns the catalog size.
func (s *Store) CountTechniques(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM mitre_techniques")
	if err != nil {
		return 0, fmt.Errorf("count techniques: %w", err)
	}

	return count, nil
}

func fromTechniqueRow(row *techniqueRow) mitre.Technique {
	technique := mitre.Technique{
		TechniqueID: row.TechniqueID,
		Name:        row.Name,
		Tactic:      row.Tactic,
		Description: row.Description.String,
	}

	if row.Platforms.Valid {
		_ = json.Unmarshal([]byte(row.Platforms.String), &technique.Platforms)
	}

	if row.DataSources.Valid {
		_ = json.Unmarshal([]byte(row.DataSources.String), &technique.DataSources)
	}

	return technique
}

func marshalStringList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal string list: %w", err)
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}
