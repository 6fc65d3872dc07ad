// Package roster persists cadet and staff profiles.
package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"rotcunit/internal/model"
)

// Repository persists unit profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateCadet inserts a cadet profile.
func (r *Repository) CreateCadet(ctx context.Context, c model.Cadet) (model.Cadet, error) {
	if c.LastName == "" || c.FirstName == "" {
		return model.Cadet{}, errors.New("first and last name required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO cadets (id, last_name, first_name, rank, course, email, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING active, created_at
	`, c.ID, c.LastName, c.FirstName, c.Rank, c.Course, c.Email)
	if err := row.Scan(&c.Active, &c.CreatedAt); err != nil {
		return model.Cadet{}, err
	}
	return c, nil
}

// ListCadets returns cadet profiles ordered by name.
func (r *Repository) ListCadets(ctx context.Context, activeOnly bool) ([]model.Cadet, error) {
	query := `
		SELECT id, last_name, first_name, rank, COALESCE(course, ''), email, active, created_at
		FROM cadets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cadets []model.Cadet
	for rows.Next() {
		var c model.Cadet
		if err := rows.Scan(&c.ID, &c.LastName, &c.FirstName, &c.Rank, &c.Course, &c.Email, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		cadets = append(cadets, c)
	}
	return cadets, rows.Err()
}

// CreateStaff inserts a staff profile.
func (r *Repository) CreateStaff(ctx context.Context, s model.Staff) (model.Staff, error) {
	if s.LastName == "" || s.FirstName == "" {
		return model.Staff{}, errors.New("first and last name required")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, last_name, first_name, rank, role, email, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING active, created_at
	`, s.ID, s.LastName, s.FirstName, s.Rank, s.Role, s.Email)
	if err := row.Scan(&s.Active, &s.CreatedAt); err != nil {
		return model.Staff{}, err
	}
	return s, nil
}

// ListStaff returns staff profiles ordered by name.
func (r *Repository) ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error) {
	query := `
		SELECT id, last_name, first_name, rank, COALESCE(role, ''), email, active, created_at
		FROM staff`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.LastName, &s.FirstName, &s.Rank, &s.Role, &s.Email, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// Members projects active profiles of one type into roster members, the
// shape scan matching and exports consume.
func (r *Repository) Members(ctx context.Context, personType model.PersonType) ([]model.RosterMember, error) {
	switch personType {
	case model.PersonCadet:
		cadets, err := r.ListCadets(ctx, true)
		if err != nil {
			return nil, err
		}
		members := make([]model.RosterMember, len(cadets))
		for i, c := range cadets {
			members[i] = model.RosterMember{
				ID: c.ID, Type: model.PersonCadet,
				LastName: c.LastName, FirstName: c.FirstName,
				Rank: c.Rank, Course: c.Course,
			}
		}
		return members, nil
	case model.PersonStaff:
		staff, err := r.ListStaff(ctx, true)
		if err != nil {
			return nil, err
		}
		members := make([]model.RosterMember, len(staff))
		for i, s := range staff {
			members[i] = model.RosterMember{
				ID: s.ID, Type: model.PersonStaff,
				LastName: s.LastName, FirstName: s.FirstName,
				Rank: s.Rank,
			}
		}
		return members, nil
	}
	return nil, errors.New("unknown person type")
}

// GetMember returns one roster member by id, or nil when absent.
func (r *Repository) GetMember(ctx context.Context, id string, personType model.PersonType) (*model.RosterMember, error) {
	table := "cadets"
	if personType == model.PersonStaff {
		table = "staff"
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, last_name, first_name, rank
		FROM `+table+` WHERE id = $1 AND active
	`, id)
	m := model.RosterMember{Type: personType}
	if err := row.Scan(&m.ID, &m.LastName, &m.FirstName, &m.Rank); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
