package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/happycoding7/signal-extract/dbopen"
)

// SaveRun persists a structured synthesis run atomically: the run row,
// every opportunity, and every evidence row commit together or not at all.
// Returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, opps []*Opportunity, itemCount int, model string, digestID *int64) (int64, error) {
	now := time.Now().UnixMilli()
	var runID int64

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO opportunity_runs (digest_id, item_count, opportunity_count, model, generated_at)
			VALUES (?, ?, ?, ?, ?)`,
			digestID, itemCount, len(opps), model, now)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		runID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, o := range opps {
			if err := insertOpportunityTx(ctx, tx, runID, now, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, o := range opps {
		o.RunID = runID
		o.GeneratedAt = now
	}
	return runID, nil
}

func insertOpportunityTx(ctx context.Context, tx *sql.Tx, runID, now int64, o *Opportunity) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO opportunities (slug, run_id, title, pain, target_buyer,
		solution_shape, market_type, effort_estimate, monetization, moat,
		confidence, competition_notes, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Slug, runID, o.Title, o.Pain, o.TargetBuyer,
		o.SolutionShape, o.MarketType, o.EffortEstimate, o.Monetization, o.Moat,
		o.Confidence, o.CompetitionNotes, now)
	if err != nil {
		return fmt.Errorf("insert opportunity %s: %w", o.Slug, err)
	}
	for _, ev := range o.Evidence {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO opportunity_evidence (opportunity_id, run_id, source,
			item_title, url, score, item_identity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.Slug, runID, ev.Source, ev.ItemTitle, ev.URL, ev.Score, ev.ItemIdentity)
		if err != nil {
			return fmt.Errorf("insert evidence for %s: %w", o.Slug, err)
		}
	}
	return nil
}

// AddOpportunity attaches one opportunity to an existing run. The run must
// exist: a dangling run ID returns ErrNoSuchRun.
func (s *Store) AddOpportunity(ctx context.Context, runID int64, o *Opportunity) error {
	var exists int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunity_runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %d", ErrNoSuchRun, runID)
	}

	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return insertOpportunityTx(ctx, tx, runID, now, o)
	})
	if err != nil {
		return err
	}
	o.RunID = runID
	o.GeneratedAt = now
	return nil
}

// AddEvidence attaches one evidence row to an existing (slug, run)
// opportunity. Evidence for an opportunity that was never recorded is
// rejected with ErrNoSuchOpportunity.
func (s *Store) AddEvidence(ctx context.Context, slug string, runID int64, ev *Evidence) error {
	var exists int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities WHERE slug = ? AND run_id = ?`,
		slug, runID).Scan(&exists); err != nil {
		return fmt.Errorf("check opportunity: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s in run %d", ErrNoSuchOpportunity, slug, runID)
	}

	res, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO opportunity_evidence (opportunity_id, run_id, source,
		item_title, url, score, item_identity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slug, runID, ev.Source, ev.ItemTitle, ev.URL, ev.Score, ev.ItemIdentity)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	ev.Slug = slug
	ev.RunID = runID
	return nil
}

// GetRun retrieves a run by ID. Missing runs return (nil, nil).
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, digest_id, item_count, opportunity_count, model, generated_at
		FROM opportunity_runs WHERE id = ?`, id)

	var r Run
	var digestID sql.NullInt64
	err := row.Scan(&r.ID, &digestID, &r.ItemCount, &r.OpportunityCount, &r.Model, &r.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if digestID.Valid {
		r.DigestID = &digestID.Int64
	}
	return &r, nil
}

const opportunityCols = `slug, run_id, title, pain, target_buyer, solution_shape,
	market_type, effort_estimate, monetization, moat, confidence,
	competition_notes, generated_at`

// QueryOpportunities returns opportunities matching f, newest first then
// highest confidence, with evidence attached. Also returns the total match
// count before pagination.
func (s *Store) QueryOpportunities(ctx context.Context, f OpportunityFilter) ([]*Opportunity, int, error) {
	where := `WHERE confidence >= ?`
	args := []any{f.MinConfidence}
	if f.Buyer != "" {
		where += ` AND target_buyer LIKE ?`
		args = append(args, "%"+f.Buyer+"%")
	}
	if f.MarketType != "" {
		where += ` AND market_type LIKE ?`
		args = append(args, "%"+f.MarketType+"%")
	}
	if f.Since > 0 {
		where += ` AND generated_at >= ?`
		args = append(args, f.Since)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+opportunityCols+` FROM opportunities `+where+`
		ORDER BY generated_at DESC, confidence DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, o := range result {
		if err := s.loadEvidence(ctx, o); err != nil {
			return nil, 0, err
		}
	}
	return result, total, nil
}

// LatestOpportunity returns the most recent version of a slug across all
// runs, with evidence. Missing slugs return (nil, nil).
func (s *Store) LatestOpportunity(ctx context.Context, slug string) (*Opportunity, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		WHERE slug = ? ORDER BY generated_at DESC, run_id DESC LIMIT 1`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	o, err := scanOpportunity(rows)
	if err != nil {
		return nil, err
	}
	// Release the connection before loadEvidence queries again; with a
	// single-connection pool the open cursor would deadlock it.
	rows.Close()
	if err := s.loadEvidence(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Trend returns the confidence history of a slug, oldest first.
func (s *Store) Trend(ctx context.Context, slug string) ([]TrendPoint, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT run_id, confidence, generated_at FROM opportunities
		WHERE slug = ? ORDER BY generated_at ASC, run_id ASC`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.RunID, &p.Confidence, &p.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// TrendDirection compares the two most recent points. Fewer than two
// points means no trend.
func TrendDirection(points []TrendPoint) string {
	if len(points) < 2 {
		return TrendNone
	}
	last := points[len(points)-1].Confidence
	prev := points[len(points)-2].Confidence
	switch {
	case last > prev:
		return TrendIncreasing
	case last < prev:
		return TrendDecreasing
	default:
		return TrendFlat
	}
}

// SlugTrend pairs a slug with its confidence history.
type SlugTrend struct {
	Slug      string       `json:"slug"`
	Title     string       `json:"title"`
	Direction string       `json:"direction"`
	Points    []TrendPoint `json:"points"`
}

// AllTrends returns the confidence history of every slug seen in at least
// one run, ordered by slug.
func (s *Store) AllTrends(ctx context.Context) ([]*SlugTrend, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT slug, title, run_id, confidence, generated_at FROM opportunities
		ORDER BY slug ASC, generated_at ASC, run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SlugTrend
	var cur *SlugTrend
	for rows.Next() {
		var slug, title string
		var p TrendPoint
		if err := rows.Scan(&slug, &title, &p.RunID, &p.Confidence, &p.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		if cur == nil || cur.Slug != slug {
			cur = &SlugTrend{Slug: slug, Title: title}
			result = append(result, cur)
		}
		cur.Title = title // latest title wins
		cur.Points = append(cur.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range result {
		t.Direction = TrendDirection(t.Points)
	}
	return result, nil
}

func (s *Store) loadEvidence(ctx context.Context, o *Opportunity) error {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, opportunity_id, run_id, source, item_title, url, score, item_identity
		FROM opportunity_evidence WHERE opportunity_id = ? AND run_id = ?
		ORDER BY id ASC`, o.Slug, o.RunID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ev Evidence
		if err := rows.Scan(&ev.ID, &ev.Slug, &ev.RunID, &ev.Source, &ev.ItemTitle,
			&ev.URL, &ev.Score, &ev.ItemIdentity); err != nil {
			return fmt.Errorf("scan evidence: %w", err)
		}
		o.Evidence = append(o.Evidence, &ev)
	}
	return rows.Err()
}

func scanOpportunity(rows *sql.Rows) (*Opportunity, error) {
	var o Opportunity
	err := rows.Scan(&o.Slug, &o.RunID, &o.Title, &o.Pain, &o.TargetBuyer,
		&o.SolutionShape, &o.MarketType, &o.EffortEstimate, &o.Monetization,
		&o.Moat, &o.Confidence, &o.CompetitionNotes, &o.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("scan opportunity: %w", err)
	}
	return &o, nil
}
