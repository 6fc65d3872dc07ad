package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rotcunit/internal/cache"
	"rotcunit/internal/model"
	"rotcunit/internal/scan"
)

// ErrNoMatches is returned when sheet reconciliation recognizes nobody.
var ErrNoMatches = errors.New("no roster matches found in recognized text")

// Persistence is the slice of the attendance repository the service writes
// through.
type Persistence interface {
	CreateDay(ctx context.Context, day model.TrainingDay) (model.TrainingDay, error)
	ListDays(ctx context.Context, limit, offset int) ([]model.TrainingDay, error)
	GetDay(ctx context.Context, id string) (*model.TrainingDay, error)
	DeleteDay(ctx context.Context, id string) error
	ListRecords(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error)
	UpsertMark(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
}

// Rosters resolves people against the enrolled profiles.
type Rosters interface {
	GetMember(ctx context.Context, id string, personType model.PersonType) (*model.RosterMember, error)
	Members(ctx context.Context, personType model.PersonType) ([]model.RosterMember, error)
}

// Service coordinates attendance marking, scan ingestion, and sheet import.
// Every successful mark invalidates the person-type cache tag, so derived
// views (grading summaries, admin lists) rebuild on their next read.
type Service struct {
	repo    Persistence
	rosters Rosters
	store   cache.Store
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewService creates a service backed by the attendance and roster repos.
func NewService(repo Persistence, rosters Rosters, store cache.Store, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, rosters: rosters, store: store, log: log, now: time.Now}
}

// CreateDay validates and creates a training day with its roster snapshot.
func (s *Service) CreateDay(ctx context.Context, date time.Time, title, description string) (model.TrainingDay, error) {
	if strings.TrimSpace(title) == "" {
		return model.TrainingDay{}, errors.New("title required")
	}
	if date.IsZero() {
		return model.TrainingDay{}, errors.New("date required")
	}
	return s.repo.CreateDay(ctx, model.TrainingDay{Date: date, Title: title, Description: description})
}

// ListDays returns training days newest first.
func (s *Service) ListDays(ctx context.Context, limit, offset int) ([]model.TrainingDay, error) {
	return s.repo.ListDays(ctx, limit, offset)
}

// DeleteDay removes a day and, through the cascade, its records.
func (s *Service) DeleteDay(ctx context.Context, id string) error {
	return s.repo.DeleteDay(ctx, id)
}

// Records returns the roster of records for one (day, type) pair.
func (s *Service) Records(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error) {
	return s.repo.ListRecords(ctx, dayID, personType)
}

// Mark upserts the full record state for one person on one day. The same
// payload submitted twice leaves the record unchanged after the first.
func (s *Service) Mark(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.TrainingDayID == "" || rec.PersonID == "" {
		return model.AttendanceRecord{}, errors.New("day and person required")
	}
	if !rec.PersonType.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("unknown person type %q", rec.PersonType)
	}
	if !rec.Status.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("unknown status %q", rec.Status)
	}
	day, err := s.repo.GetDay(ctx, rec.TrainingDayID)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if day == nil {
		return model.AttendanceRecord{}, fmt.Errorf("training day %s not found", rec.TrainingDayID)
	}
	out, err := s.repo.UpsertMark(ctx, rec)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if err := s.store.InvalidateTag(ctx, string(rec.PersonType)); err != nil {
		s.log.Warnw("derived-view invalidation failed", "tag", rec.PersonType, "err", err)
	}
	return out, nil
}

// Scan registers attendance from a raw decoded QR payload. The payload is
// parsed here, server-side; stations pass the original text through.
func (s *Service) Scan(ctx context.Context, dayID, qrData string, status model.Status, personType model.PersonType) (model.AttendanceRecord, error) {
	payload := scan.ParseQR(qrData)
	personID := strings.TrimSpace(payload.Raw)
	if payload.Parsed && payload.StudentID != "" {
		personID = payload.StudentID
	}
	if personID == "" {
		return model.AttendanceRecord{}, errors.New("empty scan payload")
	}

	member, err := s.rosters.GetMember(ctx, personID, personType)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if member == nil {
		return model.AttendanceRecord{}, fmt.Errorf("scanned id %q not on roster", personID)
	}

	if !status.Valid() {
		status = model.StatusPresent
	}
	rec := model.AttendanceRecord{
		TrainingDayID: dayID,
		PersonID:      member.ID,
		PersonType:    personType,
		Status:        status,
		TimeIn:        s.now().Format("03:04PM"),
	}
	return s.Mark(ctx, rec)
}

// ImportSheet reconciles recognized sheet text against the active roster and
// returns mark candidates for confirmation. Nothing is written here.
func (s *Service) ImportSheet(ctx context.Context, personType model.PersonType, text string) ([]scan.Candidate, error) {
	members, err := s.rosters.Members(ctx, personType)
	if err != nil {
		return nil, err
	}
	cands := scan.ReconcileSheet(text, members)
	if len(cands) == 0 {
		return nil, ErrNoMatches
	}
	return cands, nil
}

// ConfirmImport submits accepted candidates one mark at a time, the same
// path manual marking takes. There is no batch transaction: failures are
// collected and returned so a partial import is visible to the caller.
func (s *Service) ConfirmImport(ctx context.Context, dayID string, cands []scan.Candidate) (applied int, failures []error) {
	for _, c := range cands {
		rec := model.AttendanceRecord{
			TrainingDayID: dayID,
			PersonID:      c.Person.ID,
			PersonType:    c.Person.Type,
			Status:        c.Status,
			TimeIn:        c.TimeIn,
			TimeOut:       c.TimeOut,
		}
		if _, err := s.Mark(ctx, rec); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", c.Person.ID, err))
			continue
		}
		applied++
	}
	return applied, failures
}
