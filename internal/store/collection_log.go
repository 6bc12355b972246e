package store

import (
	"context"
	"fmt"
)

// InsertCollectionLog records one collector pass.
func (s *Store) InsertCollectionLog(ctx context.Context, e *CollectionLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO collection_log (id, collector, status, raw_count, kept_count,
		stored_count, error_message, rules_version, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Collector, e.Status, e.RawCount, e.KeptCount,
		e.StoredCount, e.ErrorMessage, e.RulesVersion, e.DurationMs, e.StartedAt)
	if err != nil {
		return fmt.Errorf("insert collection log: %w", err)
	}
	return nil
}

// RecentCollectionLog returns the latest pass records, newest first.
func (s *Store) RecentCollectionLog(ctx context.Context, limit int) ([]*CollectionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, collector, status, raw_count, kept_count, stored_count,
		error_message, rules_version, duration_ms, started_at
		FROM collection_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*CollectionLogEntry
	for rows.Next() {
		var e CollectionLogEntry
		if err := rows.Scan(&e.ID, &e.Collector, &e.Status, &e.RawCount, &e.KeptCount,
			&e.StoredCount, &e.ErrorMessage, &e.RulesVersion, &e.DurationMs, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("scan collection log: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
