package services

import (
	"context"

	"xeroexport/pkg/models"
)

// StateStore persists the execution state of exports between runs.
// Implementations must be durable: a task recorded as complete is never
// executed again, so a lost write can duplicate ledger documents.
type StateStore interface {
	// Load returns the stored state for an export, or an empty state if the
	// export has never run.
	Load(ctx context.Context, exportKey string) (*models.State, error)

	// Save replaces the stored state for an export (last write wins).
	Save(ctx context.Context, exportKey string, state *models.State) error

	// Close releases any resources held by the store.
	Close() error
}

// StateLoader reads the current state before the first task of a run
type StateLoader func(ctx context.Context) (*models.State, error)

// StateWriter durably stores the state after every task attempt
type StateWriter func(ctx context.Context, state *models.State) error

// Bind adapts a store to the loader and writer pair for a single export
func Bind(store StateStore, exportKey string) (StateLoader, StateWriter) {
	load := func(ctx context.Context) (*models.State, error) {
		return store.Load(ctx, exportKey)
	}
	write := func(ctx context.Context, state *models.State) error {
		return store.Save(ctx, exportKey, state)
	}
	return load, write
}
