package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertItem stores an item if its identity is not already present.
// Returns true when the row was inserted, false for a duplicate.
// A duplicate identity carrying a different (source, source_id) pair is an
// identity collision and returns ErrIdentityCollision.
func (s *Store) InsertItem(ctx context.Context, it *Item) (bool, error) {
	if it.MetadataJSON == "" {
		it.MetadataJSON = "{}"
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO items (identity, source, source_id, url, title, body,
		metadata_json, score, observed_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Identity, it.Source, it.SourceID, it.URL, it.Title, it.Body,
		it.MetadataJSON, it.Score, it.ObservedAt, it.CollectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var source, sourceID string
	err = s.DB.QueryRowContext(ctx,
		`SELECT source, source_id FROM items WHERE identity = ?`, it.Identity).
		Scan(&source, &sourceID)
	if err != nil {
		return false, fmt.Errorf("insert item: verify duplicate: %w", err)
	}
	if source != it.Source || sourceID != it.SourceID {
		return false, fmt.Errorf("%w: %s held by (%s, %s), offered (%s, %s)",
			ErrIdentityCollision, it.Identity, source, sourceID, it.Source, it.SourceID)
	}
	return false, nil
}

// GetItem retrieves an item by identity. Missing items return (nil, nil).
func (s *Store) GetItem(ctx context.Context, identity string) (*Item, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT identity, source, source_id, url, title, body, metadata_json,
		score, observed_at, collected_at
		FROM items WHERE identity = ?`, identity)
	return scanItem(row)
}

// HasItem reports whether an item with the given identity exists.
func (s *Store) HasItem(ctx context.Context, identity string) (bool, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE identity = ?`, identity).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has item: %w", err)
	}
	return count > 0, nil
}

// QueryItems returns items matching f, highest score first, then newest,
// plus the total match count before pagination.
func (s *Store) QueryItems(ctx context.Context, f ItemFilter) ([]*Item, int, error) {
	where := `WHERE score >= ?`
	args := []any{f.MinScore}
	if f.Source != "" {
		where += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.Since > 0 {
		where += ` AND collected_at >= ?`
		args = append(args, f.Since)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT identity, source, source_id, url, title, body, metadata_json,
		score, observed_at, collected_at
		FROM items `+where+`
		ORDER BY score DESC, collected_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Item
	for rows.Next() {
		it, err := scanItemRows(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, it)
	}
	return result, total, rows.Err()
}

// ItemsSince returns items collected at or after since (ms) with score at
// least minScore, highest score first. Used to build synthesis windows.
func (s *Store) ItemsSince(ctx context.Context, since int64, minScore int) ([]*Item, error) {
	items, _, err := s.QueryItems(ctx, ItemFilter{Since: since, MinScore: minScore, Limit: 200})
	return items, err
}

func scanItem(row *sql.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.Identity, &it.Source, &it.SourceID, &it.URL, &it.Title,
		&it.Body, &it.MetadataJSON, &it.Score, &it.ObservedAt, &it.CollectedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return &it, nil
}

func scanItemRows(rows *sql.Rows) (*Item, error) {
	var it Item
	err := rows.Scan(&it.Identity, &it.Source, &it.SourceID, &it.URL, &it.Title,
		&it.Body, &it.MetadataJSON, &it.Score, &it.ObservedAt, &it.CollectedAt)
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return &it, nil
}
