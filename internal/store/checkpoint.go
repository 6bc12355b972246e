package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetCheckpoint returns the opaque checkpoint state for a collector.
// A collector that has never completed a pass returns (nil, nil).
func (s *Store) GetCheckpoint(ctx context.Context, collector string) (json.RawMessage, error) {
	var state string
	err := s.DB.QueryRowContext(ctx,
		`SELECT state_json FROM collector_state WHERE collector = ?`, collector).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint %s: %w", collector, err)
	}
	return json.RawMessage(state), nil
}

// SetCheckpoint atomically replaces a collector's checkpoint. Only the
// named collector's row is touched. Callers write a checkpoint only after
// a fully successful pass.
func (s *Store) SetCheckpoint(ctx context.Context, collector string, state json.RawMessage) error {
	if len(state) == 0 {
		state = json.RawMessage("{}")
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO collector_state (collector, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collector) DO UPDATE SET state_json = excluded.state_json,
		updated_at = excluded.updated_at`,
		collector, string(state), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", collector, err)
	}
	return nil
}
