package store

import (
	"context"
	"database/sql"
)

// GetStats returns aggregate counters for the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: map[string]int{}}

	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&stats.Items); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM digests`).Scan(&stats.Digests); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunity_runs`).Scan(&stats.Runs); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&stats.Opportunities); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT source, COUNT(*) FROM items GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		stats.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(collected_at) FROM items`).Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		stats.LastCollected = &last.Int64
	}

	var avg sql.NullFloat64
	if err := s.DB.QueryRowContext(ctx, `SELECT AVG(score) FROM items`).Scan(&avg); err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgScore = avg.Float64
	}
	return stats, nil
}
