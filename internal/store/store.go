// Package store is the data access layer for the signal database. One
// single-file SQLite database holds raw items, collector checkpoints,
// digests, and run-versioned opportunities.
//
// The store receives an already-opened *sql.DB (see dbopen) so the CLI
// and the query server can choose read-write or read-only mode.
package store

import (
	"database/sql"
	"errors"
)

// Sentinel errors for referential and identity violations.
var (
	ErrNoSuchRun         = errors.New("store: no such opportunity run")
	ErrNoSuchOpportunity = errors.New("store: no such opportunity")
	ErrIdentityCollision = errors.New("store: identity collision")
)

// Store wraps the signal database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
