package grading

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rotcunit/internal/attendance"
	"rotcunit/internal/cache"
	"rotcunit/internal/model"
	"rotcunit/internal/roster"
)

// CadetSummary is one grading-view row: attendance-derived score plus the
// net merit balance.
type CadetSummary struct {
	CadetID         string  `json:"cadet_id"`
	Name            string  `json:"name"`
	Rank            string  `json:"rank"`
	Present         int     `json:"present"`
	Late            int     `json:"late"`
	Absent          int     `json:"absent"`
	Excused         int     `json:"excused"`
	AttendanceScore float64 `json:"attendance_score"`
	MeritPoints     int     `json:"merit_points"`
}

const (
	summaryNamespace = "grading"
	summaryKey       = "cadets_list"
	summaryFreshFor  = 5 * time.Minute
)

// Service computes grading summaries, cached under the cadet tag so any
// attendance mutation invalidates them.
type Service struct {
	repo    *Repository
	att     *attendance.Repository
	rosters *roster.Repository
	store   cache.Store
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewService creates a grading service.
func NewService(repo *Repository, att *attendance.Repository, rosters *roster.Repository, store cache.Store, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, att: att, rosters: rosters, store: store, log: log, now: time.Now}
}

// AddMerit appends a ledger line and invalidates cached summaries.
func (s *Service) AddMerit(ctx context.Context, e model.MeritEntry) (model.MeritEntry, error) {
	out, err := s.repo.InsertMerit(ctx, e)
	if err != nil {
		return model.MeritEntry{}, err
	}
	if err := s.store.InvalidateTag(ctx, string(model.PersonCadet)); err != nil {
		s.log.Warnw("summary invalidation failed", "err", err)
	}
	return out, nil
}

// Merits returns a cadet's ledger.
func (s *Service) Merits(ctx context.Context, cadetID string) ([]model.MeritEntry, error) {
	return s.repo.ListMerits(ctx, cadetID)
}

// Summary returns the grading view for all active cadets, served from cache
// while fresh.
func (s *Service) Summary(ctx context.Context) ([]CadetSummary, error) {
	if entry, err := s.store.Get(ctx, summaryNamespace, summaryKey); err == nil && entry.FreshWithin(summaryFreshFor, s.now()) {
		var cached []CadetSummary
		if err := entry.Decode(&cached); err == nil {
			return cached, nil
		}
	}

	cadets, err := s.rosters.ListCadets(ctx, true)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.MeritTotals(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]CadetSummary, 0, len(cadets))
	for _, c := range cadets {
		counts, err := s.att.StatusCounts(ctx, c.ID, model.PersonCadet)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, CadetSummary{
			CadetID:         c.ID,
			Name:            c.LastName + ", " + c.FirstName,
			Rank:            c.Rank,
			Present:         counts[model.StatusPresent],
			Late:            counts[model.StatusLate],
			Absent:          counts[model.StatusAbsent],
			Excused:         counts[model.StatusExcused],
			AttendanceScore: Score(counts),
			MeritPoints:     totals[c.ID],
		})
	}

	if err := s.store.Put(ctx, summaryNamespace, summaryKey, summaries, string(model.PersonCadet)); err != nil {
		s.log.Warnw("summary cache write failed", "err", err)
	}
	return summaries, nil
}

// Score converts status counts into a 0-100 attendance score. Late counts
// half; excused days are removed from the denominator.
func Score(counts map[model.Status]int) float64 {
	marked := counts[model.StatusPresent] + counts[model.StatusLate] + counts[model.StatusAbsent]
	if marked == 0 {
		return 0
	}
	earned := float64(counts[model.StatusPresent]) + 0.5*float64(counts[model.StatusLate])
	return 100 * earned / float64(marked)
}
