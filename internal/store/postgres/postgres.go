// Package postgres keeps execution state as JSONB rows keyed by export.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"xeroexport/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_state (
	export_key TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	document JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store persists state in the execution_state table
type Store struct {
	db *sqlx.DB
}

type stateRow struct {
	ExportKey string `db:"export_key"`
	RunID     string `db:"run_id"`
	Document  []byte `db:"document"`
}

// New connects to PostgreSQL and creates the state table if needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns an empty state when the export has no row yet
func (s *Store) Load(ctx context.Context, exportKey string) (*models.State, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT export_key, run_id, document FROM execution_state WHERE export_key = $1`, exportKey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", exportKey, err)
	}

	state := models.NewState()
	if err := json.Unmarshal(row.Document, state); err != nil {
		return nil, fmt.Errorf("postgres: decode %s: %w", exportKey, err)
	}
	return state, nil
}

// Save inserts or replaces the row of the export
func (s *Store) Save(ctx context.Context, exportKey string, state *models.State) error {
	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", exportKey, err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO execution_state (export_key, run_id, document, updated_at)
		VALUES (:export_key, :run_id, :document, now())
		ON CONFLICT (export_key)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, stateRow{ExportKey: exportKey, RunID: state.RunID, Document: document})
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", exportKey, err)
	}
	return nil
}
