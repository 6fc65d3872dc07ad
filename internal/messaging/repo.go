// Package messaging persists unit-wide announcements.
package messaging

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"rotcunit/internal/model"
)

// Repository persists announcements in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Post stores an announcement.
func (r *Repository) Post(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	if a.Title == "" || a.Body == "" {
		return model.Announcement{}, errors.New("title and body required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO announcements (id, author_id, title, body, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING posted_at
	`, a.ID, a.AuthorID, a.Title, a.Body, a.ExpiresAt)
	if err := row.Scan(&a.PostedAt); err != nil {
		return model.Announcement{}, err
	}
	return a, nil
}

// List returns current announcements newest first, skipping expired ones.
func (r *Repository) List(ctx context.Context, limit int) ([]model.Announcement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author_id, title, body, posted_at, expires_at
		FROM announcements
		WHERE expires_at IS NULL OR expires_at > NOW()
		ORDER BY posted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Title, &a.Body, &a.PostedAt, &a.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
