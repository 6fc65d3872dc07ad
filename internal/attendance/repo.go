package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rotcunit/internal/model"
)

// Repository persists training days and attendance records in Postgres.
// attendance_records carries a UNIQUE (training_day_id, person_id,
// person_type) constraint and an ON DELETE CASCADE foreign key to
// training_days, so day deletion removes its records server-side.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateDay inserts a training day and snapshots the active roster into
// explicit unmarked records, one per enrolled person.
func (r *Repository) CreateDay(ctx context.Context, day model.TrainingDay) (model.TrainingDay, error) {
	if day.ID == "" {
		day.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.TrainingDay{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO training_days (id, date, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, day.ID, day.Date, day.Title, day.Description)
	if err := row.Scan(&day.CreatedAt); err != nil {
		return model.TrainingDay{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (training_day_id, person_id, person_type, status)
		SELECT $1, id, 'cadet', 'unmarked' FROM cadets WHERE active
	`, day.ID)
	if err != nil {
		return model.TrainingDay{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (training_day_id, person_id, person_type, status)
		SELECT $1, id, 'staff', 'unmarked' FROM staff WHERE active
	`, day.ID)
	if err != nil {
		return model.TrainingDay{}, err
	}

	return day, tx.Commit()
}

// ListDays returns training days newest first.
func (r *Repository) ListDays(ctx context.Context, limit, offset int) ([]model.TrainingDay, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, title, description, created_at
		FROM training_days
		ORDER BY date DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []model.TrainingDay
	for rows.Next() {
		var d model.TrainingDay
		if err := rows.Scan(&d.ID, &d.Date, &d.Title, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// GetDay returns one training day, or nil when absent.
func (r *Repository) GetDay(ctx context.Context, id string) (*model.TrainingDay, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, title, description, created_at
		FROM training_days WHERE id = $1
	`, id)
	var d model.TrainingDay
	if err := row.Scan(&d.ID, &d.Date, &d.Title, &d.Description, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DeleteDay removes a training day; its records go with it via the cascade.
func (r *Repository) DeleteDay(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM training_days WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("training day %s not found", id)
	}
	return nil
}

// ListRecords returns the roster of records for one (day, type) pair,
// ordered by the person's last name.
func (r *Repository) ListRecords(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error) {
	table := "cadets"
	if personType == model.PersonStaff {
		table = "staff"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.training_day_id, a.person_id, a.person_type, a.status,
		       COALESCE(a.time_in, ''), COALESCE(a.time_out, ''), COALESCE(a.remarks, ''),
		       a.updated_at
		FROM attendance_records a
		JOIN `+table+` p ON p.id = a.person_id
		WHERE a.training_day_id = $1 AND a.person_type = $2
		ORDER BY p.last_name, p.first_name
	`, dayID, personType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.TrainingDayID, &rec.PersonID, &rec.PersonType, &rec.Status,
			&rec.TimeIn, &rec.TimeOut, &rec.Remarks, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertMark writes the full record state. Submitting the same payload twice
// leaves the row identical to a single submission.
func (r *Repository) UpsertMark(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (training_day_id, person_id, person_type, status, time_in, time_out, remarks, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NOW())
		ON CONFLICT (training_day_id, person_id, person_type) DO UPDATE SET
			status = EXCLUDED.status,
			time_in = EXCLUDED.time_in,
			time_out = EXCLUDED.time_out,
			remarks = EXCLUDED.remarks,
			updated_at = NOW()
		RETURNING updated_at
	`, rec.TrainingDayID, rec.PersonID, rec.PersonType, rec.Status, rec.TimeIn, rec.TimeOut, rec.Remarks)
	if err := row.Scan(&rec.UpdatedAt); err != nil {
		return model.AttendanceRecord{}, err
	}
	return rec, nil
}

// StatusCounts aggregates record counts per status for one person across all
// training days. Unmarked rows are excluded; they carry no signal.
func (r *Repository) StatusCounts(ctx context.Context, personID string, personType model.PersonType) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM attendance_records
		WHERE person_id = $1 AND person_type = $2 AND status <> 'unmarked'
		GROUP BY status
	`, personID, personType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpsertStation ensures a scanning-station record exists.
func (r *Repository) UpsertStation(ctx context.Context, stationID string) error {
	if stationID == "" {
		return errors.New("station id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (station_id)
		VALUES ($1)
		ON CONFLICT (station_id) DO NOTHING
	`, stationID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, stationID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (station_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, stationID, token, expiresAt)
	return err
}
