package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertDigest stores a digest and returns its ID.
func (s *Store) InsertDigest(ctx context.Context, d *Digest) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO digests (kind, content, item_count, model, generated_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Kind, d.Content, d.ItemCount, d.Model, d.GeneratedAt)
	if err != nil {
		return 0, fmt.Errorf("insert digest: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert digest: %w", err)
	}
	d.ID = id
	return id, nil
}

// GetDigest retrieves a digest by ID. Missing digests return (nil, nil).
func (s *Store) GetDigest(ctx context.Context, id int64) (*Digest, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, kind, content, item_count, model, generated_at
		FROM digests WHERE id = ?`, id)

	var d Digest
	err := row.Scan(&d.ID, &d.Kind, &d.Content, &d.ItemCount, &d.Model, &d.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan digest: %w", err)
	}
	return &d, nil
}

// ListDigests returns digests newest first, optionally restricted to one
// kind.
func (s *Store) ListDigests(ctx context.Context, kind string, limit int) ([]*Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, kind, content, item_count, model, generated_at FROM digests`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY generated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Digest
	for rows.Next() {
		var d Digest
		if err := rows.Scan(&d.ID, &d.Kind, &d.Content, &d.ItemCount, &d.Model, &d.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}
