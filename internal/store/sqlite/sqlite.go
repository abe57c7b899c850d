// Package sqlite keeps execution state in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"xeroexport/pkg/models"
)

// Store persists state in the execution_state table
type Store struct {
	db *sql.DB
}

// New opens the database file and creates the state table if needed
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns an empty state when the export has no row yet
func (s *Store) Load(ctx context.Context, exportKey string) (*models.State, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM execution_state WHERE export_key = ?`, exportKey,
	).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load %s: %w", exportKey, err)
	}

	state := models.NewState()
	if err := json.Unmarshal([]byte(document), state); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s: %w", exportKey, err)
	}
	return state, nil
}

// Save inserts or replaces the row of the export
func (s *Store) Save(ctx context.Context, exportKey string, state *models.State) error {
	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", exportKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_state (export_key, run_id, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(export_key)
		DO UPDATE SET
			run_id = excluded.run_id,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, exportKey, state.RunID, string(document), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", exportKey, err)
	}
	return nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS execution_state (
			export_key TEXT PRIMARY KEY,
			run_id TEXT NOT NULL DEFAULT '',
			document TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}
