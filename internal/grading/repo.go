// Package grading keeps the merit/demerit ledger and the attendance-derived
// grading summaries.
package grading

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"rotcunit/internal/model"
)

// Repository persists merit ledger entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertMerit appends one ledger line. Negative points are demerits.
func (r *Repository) InsertMerit(ctx context.Context, e model.MeritEntry) (model.MeritEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO merit_entries (id, cadet_id, points, reason, issued_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING issued_at
	`, e.ID, e.CadetID, e.Points, e.Reason, e.IssuedBy)
	if err := row.Scan(&e.IssuedAt); err != nil {
		return model.MeritEntry{}, err
	}
	return e, nil
}

// ListMerits returns a cadet's ledger newest first.
func (r *Repository) ListMerits(ctx context.Context, cadetID string) ([]model.MeritEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cadet_id, points, reason, issued_by, issued_at
		FROM merit_entries
		WHERE cadet_id = $1
		ORDER BY issued_at DESC
	`, cadetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.MeritEntry
	for rows.Next() {
		var e model.MeritEntry
		if err := rows.Scan(&e.ID, &e.CadetID, &e.Points, &e.Reason, &e.IssuedBy, &e.IssuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MeritTotals returns net merit points per cadet.
func (r *Repository) MeritTotals(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cadet_id, COALESCE(SUM(points), 0)
		FROM merit_entries
		GROUP BY cadet_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var cadetID string
		var total int
		if err := rows.Scan(&cadetID, &total); err != nil {
			return nil, err
		}
		totals[cadetID] = total
	}
	return totals, rows.Err()
}
